package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/genai"
	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type examGenerator interface {
	Enabled() bool
	GenerateExam(ctx context.Context, systemInstruction, prompt string) (*genai.ExamPayload, string, error)
}

type generatorExamStore interface {
	Upsert(ctx context.Context, exam *models.Exam) error
}

type generatorResourceLister interface {
	ListBySchool(ctx context.Context, schoolName string) ([]models.SchoolResource, error)
}

type generationObserver interface {
	GenerationStarted() func(success bool)
}

// GeneratorConfig bounds question counts and the per-request deadline.
type GeneratorConfig struct {
	DefaultQuestionCount int
	MaxQuestionCount     int
	Timeout              time.Duration
}

// GeneratorService turns a topic and grade level into a stored exam using the
// generative AI collaborator. The exam is persisted only after a complete,
// schema-valid response; there are no partial writes.
type GeneratorService struct {
	client    examGenerator
	exams     generatorExamStore
	resources generatorResourceLister
	activity  activityRecorder
	metrics   generationObserver
	cache     summaryInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	config    GeneratorConfig
}

// NewGeneratorService constructs a GeneratorService instance.
func NewGeneratorService(client examGenerator, exams generatorExamStore, resources generatorResourceLister, activity activityRecorder, metrics generationObserver, cache summaryInvalidator, validate *validator.Validate, logger *zap.Logger, config GeneratorConfig) *GeneratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.DefaultQuestionCount <= 0 {
		config.DefaultQuestionCount = 5
	}
	if config.MaxQuestionCount < config.DefaultQuestionCount {
		config.MaxQuestionCount = 25
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &GeneratorService{
		client:    client,
		exams:     exams,
		resources: resources,
		activity:  activity,
		metrics:   metrics,
		cache:     cache,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Generate produces and stores a new exam for the acting user.
func (s *GeneratorService) Generate(ctx context.Context, actor *models.JWTClaims, params models.GenerateExamParams) (*models.Exam, error) {
	if err := s.validator.Struct(params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation parameters")
	}

	if s.client == nil || !s.client.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrGenerationUnavailable, "")
	}

	count := params.QuestionCount
	if count <= 0 {
		count = s.config.DefaultQuestionCount
	}
	if count > s.config.MaxQuestionCount {
		count = s.config.MaxQuestionCount
	}

	knowledge := s.loadKnowledgeBase(ctx, actor.SchoolName)

	done := func(bool) {}
	if s.metrics != nil {
		done = s.metrics.GenerationStarted()
	}
	success := false
	defer func() { done(success) }()

	genCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	payload, raw, err := s.client.GenerateExam(genCtx, systemInstruction(), buildPrompt(params, count, knowledge))
	if err != nil {
		s.logger.Error("exam generation failed",
			zap.String("topic", params.Topic),
			zap.String("grade_level", params.GradeLevel),
			zap.Error(err),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.Wrap(err, appErrors.ErrGenerationTimeout.Code, appErrors.ErrGenerationTimeout.Status, appErrors.ErrGenerationTimeout.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, appErrors.ErrGenerationFailed.Message)
	}

	exam := s.buildExam(actor, params, payload, raw)

	if err := s.exams.Upsert(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated exam")
	}
	success = true

	s.recordActivity(ctx, actor, models.ActivityCreateExam, exam.Title)
	invalidateSummary(ctx, s.cache, s.logger)

	s.logger.Info("exam generated",
		zap.String("exam_id", exam.ID),
		zap.String("school", exam.SchoolName),
		zap.Int("questions", len(exam.Questions)),
	)

	return exam, nil
}

// buildExam converts the provider payload into a stored exam. Every question
// receives a fresh id and a flattened question text; the raw provider output
// is kept verbatim for audit.
func (s *GeneratorService) buildExam(actor *models.JWTClaims, params models.GenerateExamParams, payload *genai.ExamPayload, raw string) *models.Exam {
	questions := make(models.QuestionList, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		segments := make([]models.QuestionSegment, 0, len(q.Segments))
		parts := make([]string, 0, len(q.Segments))
		for _, seg := range q.Segments {
			segType := models.SegmentType(seg.Type)
			if segType != models.SegmentMath {
				segType = models.SegmentText
			}
			segments = append(segments, models.QuestionSegment{Type: segType, Content: seg.Content})
			parts = append(parts, seg.Content)
		}

		qType := models.QuestionType(q.Type)
		switch qType {
		case models.QuestionMultipleChoice, models.QuestionDescriptive, models.QuestionFillInBlank:
		default:
			qType = models.QuestionDescriptive
		}

		if qType == models.QuestionMultipleChoice {
			s.logger.Warn("multiple choice question generated without options", zap.String("topic", params.Topic))
		}

		questions = append(questions, models.Question{
			ID:           uuid.NewString(),
			Type:         qType,
			QuestionText: strings.Join(parts, " "),
			Segments:     segments,
			Points:       q.Points,
		})
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = fmt.Sprintf("آزمون %s", params.Topic)
	}

	return &models.Exam{
		ID:         uuid.NewString(),
		UserID:     actor.UserID,
		AuthorName: actor.FullName,
		SchoolName: actor.SchoolName,
		Title:      title,
		Topic:      params.Topic,
		GradeLevel: params.GradeLevel,
		Questions:  questions,
		RawContent: raw,
	}
}

func (s *GeneratorService) loadKnowledgeBase(ctx context.Context, schoolName string) []models.SchoolResource {
	if s.resources == nil || schoolName == "" {
		return nil
	}
	resources, err := s.resources.ListBySchool(ctx, schoolName)
	if err != nil {
		s.logger.Warn("failed to load school resources for prompt", zap.Error(err))
		return nil
	}
	return resources
}

func (s *GeneratorService) recordActivity(ctx context.Context, actor *models.JWTClaims, action, details string) {
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

func systemInstruction() string {
	return "شما یک طراح آزمون حرفه‌ای برای مدارس ایران هستید. " +
		"آزمون را دقیقا مطابق ساختار خواسته شده تولید کنید. " +
		"متن سوال‌ها را به قطعه‌های text و math تفکیک کنید؛ عبارت‌های ریاضی فقط در قطعه math قرار می‌گیرند."
}

func buildPrompt(params models.GenerateExamParams, count int, knowledge []models.SchoolResource) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "یک آزمون با %d سوال درباره «%s» برای پایه «%s» طراحی کن.\n", count, params.Topic, params.GradeLevel)
	fmt.Fprintf(&sb, "سطح دشواری: %s\n", difficultyLabel(params.Difficulty))
	sb.WriteString("ترکیبی از سوال‌های چندگزینه‌ای، تشریحی و جای خالی استفاده کن و برای هر سوال بارم مشخص کن.\n")

	if params.SourceMaterial != "" {
		sb.WriteString("\nمنبع درسی زیر را مبنای سوال‌ها قرار بده:\n")
		sb.WriteString(params.SourceMaterial)
		sb.WriteString("\n")
	}

	if len(knowledge) > 0 {
		sb.WriteString("\nمنابع آموزشی ثبت‌شده مدرسه:\n")
		for _, res := range knowledge {
			fmt.Fprintf(&sb, "- %s: %s\n", res.Title, res.Content)
		}
	}

	return sb.String()
}

func difficultyLabel(difficulty string) string {
	switch difficulty {
	case models.DifficultyEasy:
		return "آسان"
	case models.DifficultyHard:
		return "دشوار"
	default:
		return "متوسط"
	}
}
