package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type resourceRepository interface {
	Create(ctx context.Context, resource *models.SchoolResource) error
	FindByID(ctx context.Context, id string) (*models.SchoolResource, error)
	ListBySchool(ctx context.Context, schoolName string) ([]models.SchoolResource, error)
	Delete(ctx context.Context, id string) error
}

// CreateResourceRequest registers reference material for a school.
type CreateResourceRequest struct {
	Title      string   `json:"title" validate:"required"`
	Content    string   `json:"content" validate:"required"`
	Tags       []string `json:"tags"`
	SchoolName string   `json:"school_name"`
}

// ResourceService manages the per-school knowledge base that feeds the exam
// generator prompts.
type ResourceService struct {
	repo      resourceRepository
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResourceService constructs a ResourceService instance.
func NewResourceService(repo resourceRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ResourceService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// Create registers a resource. Admins always write into their own school;
// super_admins must name the target school.
func (s *ResourceService) Create(ctx context.Context, actor *models.JWTClaims, req CreateResourceRequest) (*models.SchoolResource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}

	if !CanManageResources(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role to manage resources")
	}

	schoolName := actor.SchoolName
	if actor.Role == models.RoleSuperAdmin && req.SchoolName != "" {
		schoolName = req.SchoolName
	}
	if schoolName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school name is required")
	}

	resource := &models.SchoolResource{
		SchoolName: schoolName,
		Title:      req.Title,
		Content:    req.Content,
		Tags:       pq.StringArray(req.Tags),
		AddedBy:    actor.UserID,
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
	}

	s.record(ctx, actor, models.ActivityAddResource, resource.Title)

	return resource, nil
}

// List returns the resources of the viewer's school. A super_admin may pass
// an explicit school; other roles are pinned to their own.
func (s *ResourceService) List(ctx context.Context, viewer *models.JWTClaims, schoolName string) ([]models.SchoolResource, error) {
	if viewer.Role != models.RoleSuperAdmin || schoolName == "" {
		schoolName = viewer.SchoolName
	}
	if schoolName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school name is required")
	}

	resources, err := s.repo.ListBySchool(ctx, schoolName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

// Delete removes a resource within the actor's scope.
func (s *ResourceService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if !CanManageResources(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role to manage resources")
	}

	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}

	if actor.Role != models.RoleSuperAdmin && resource.SchoolName != actor.SchoolName {
		return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}

	return nil
}

func (s *ResourceService) record(ctx context.Context, actor *models.JWTClaims, action, details string) {
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
