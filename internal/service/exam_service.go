package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type examRepository interface {
	Upsert(ctx context.Context, exam *models.Exam) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	Delete(ctx context.Context, id string) error
}

// UpdateExamRequest carries the editable parts of an exam. Only the title and
// the content of existing segments are honored; question structure, points
// and ownership never change through this path.
type UpdateExamRequest struct {
	Title     string                  `json:"title"`
	Questions []UpdateQuestionRequest `json:"questions"`
}

// UpdateQuestionRequest addresses one existing question by id.
type UpdateQuestionRequest struct {
	ID       string   `json:"id" validate:"required"`
	Segments []string `json:"segments"`
}

// ExamService manages the stored exam archive.
type ExamService struct {
	repo             examRepository
	activity         activityRecorder
	cache            summaryInvalidator
	validator        *validator.Validate
	logger           *zap.Logger
	duplicateEnabled bool
}

// NewExamService constructs an ExamService instance.
func NewExamService(repo examRepository, activity activityRecorder, cache summaryInvalidator, validate *validator.Validate, logger *zap.Logger, duplicateEnabled bool) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{repo: repo, activity: activity, cache: cache, validator: validate, logger: logger, duplicateEnabled: duplicateEnabled}
}

// List returns exams visible to the viewer with pagination metadata.
func (s *ExamService) List(ctx context.Context, viewer *models.JWTClaims, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error) {
	scope, ok := ExamScope(viewer)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role to list exams")
	}
	if scope != "" {
		filter.SchoolName = scope
	}

	exams, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return exams, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a single exam if the viewer's scope covers its school.
func (s *ExamService) Get(ctx context.Context, viewer *models.JWTClaims, id string) (*models.Exam, error) {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	if !CanViewExam(viewer, exam) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
	}

	return exam, nil
}

// Update applies title and segment content edits to an existing exam. Edits
// referencing unknown question or segment positions are ignored rather than
// rejected, so a stale editor cannot corrupt the stored structure.
func (s *ExamService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateExamRequest) (*models.Exam, error) {
	exam, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !CanModifyExam(actor, exam) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to edit this exam")
	}

	if title := strings.TrimSpace(req.Title); title != "" {
		exam.Title = title
	}

	byID := make(map[string]int, len(exam.Questions))
	for i, q := range exam.Questions {
		byID[q.ID] = i
	}

	for _, edit := range req.Questions {
		idx, found := byID[edit.ID]
		if !found {
			continue
		}
		question := &exam.Questions[idx]
		parts := make([]string, 0, len(question.Segments))
		for segIdx := range question.Segments {
			if segIdx < len(edit.Segments) {
				question.Segments[segIdx].Content = edit.Segments[segIdx]
			}
			parts = append(parts, question.Segments[segIdx].Content)
		}
		question.QuestionText = strings.Join(parts, " ")
	}

	if err := s.repo.Upsert(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store exam")
	}

	s.record(ctx, actor, models.ActivityUpdateExam, exam.Title)
	invalidateSummary(ctx, s.cache, s.logger)

	return exam, nil
}

// Delete removes an exam from the archive. Deleting an already absent exam
// succeeds, and an exam outside the caller's read scope answers the same way
// so the response does not reveal whether the id exists elsewhere.
func (s *ExamService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	if !CanViewExam(actor, exam) {
		return nil
	}

	if !CanModifyExam(actor, exam) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this exam")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}

	s.record(ctx, actor, models.ActivityDeleteExam, exam.Title)
	invalidateSummary(ctx, s.cache, s.logger)

	return nil
}

// Duplicate clones an exam into the actor's cartable with fresh ids. The
// operation sits behind a capability flag and reports not found while the
// flag is off.
func (s *ExamService) Duplicate(ctx context.Context, actor *models.JWTClaims, id string) (*models.Exam, error) {
	if !s.duplicateEnabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "")
	}

	source, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	clone := *source
	clone.ID = uuid.NewString()
	clone.UserID = actor.UserID
	clone.AuthorName = actor.FullName
	clone.SchoolName = actor.SchoolName
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}

	clone.Questions = make(models.QuestionList, len(source.Questions))
	copy(clone.Questions, source.Questions)
	for i := range clone.Questions {
		clone.Questions[i].ID = uuid.NewString()
	}

	if err := s.repo.Upsert(ctx, &clone); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store duplicated exam")
	}

	s.record(ctx, actor, models.ActivityDuplicateExam, clone.Title)
	invalidateSummary(ctx, s.cache, s.logger)

	return &clone, nil
}

func (s *ExamService) record(ctx context.Context, actor *models.JWTClaims, action, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     actor.UserID,
		UserName:   actor.FullName,
		SchoolName: actor.SchoolName,
		Action:     action,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}
