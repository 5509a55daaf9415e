package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type activityRepository interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, schoolName string, limit int) ([]models.ActivityLog, error)
}

// ActivityService exposes the capped activity log to admins.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs an ActivityService instance.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// List returns recent activity visible to the viewer, newest first.
func (s *ActivityService) List(ctx context.Context, viewer *models.JWTClaims, limit int) ([]models.ActivityLog, error) {
	scope, ok := ActivityScope(viewer)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role to view activity")
	}

	entries, err := s.repo.List(ctx, scope, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return entries, nil
}
