package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type dashboardExamCounter interface {
	CountBySchool(ctx context.Context, schoolName string) (int, error)
}

type dashboardUserCounter interface {
	CountByRole(ctx context.Context, role models.UserRole, schoolName string) (int, error)
}

type dashboardActivityLister interface {
	List(ctx context.Context, schoolName string, limit int) ([]models.ActivityLog, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type summaryInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool)
}

const dashboardRecentActivity = 10

// summaryCachePattern matches every cached dashboard summary; mutating
// services drop all scopes at once since a single write can shift both the
// per-school and the global counters.
const summaryCachePattern = "dashboard:summary:*"

// invalidateSummary drops cached dashboard summaries after a mutation. Cache
// failures stay silent; the next summary falls back to the database anyway.
func invalidateSummary(ctx context.Context, cache summaryInvalidator, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.DeleteByPattern(ctx, summaryCachePattern); err != nil {
		logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

// DashboardService assembles the landing page summary, cached per scope in
// Redis.
type DashboardService struct {
	exams    dashboardExamCounter
	users    dashboardUserCounter
	activity dashboardActivityLister
	cache    summaryCache
	metrics  cacheObserver
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewDashboardService constructs a DashboardService instance.
func NewDashboardService(exams dashboardExamCounter, users dashboardUserCounter, activity dashboardActivityLister, cache summaryCache, metrics cacheObserver, logger *zap.Logger, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{exams: exams, users: users, activity: activity, cache: cache, metrics: metrics, logger: logger, cacheTTL: cacheTTL}
}

// Summary returns the dashboard counters for the viewer's scope.
func (s *DashboardService) Summary(ctx context.Context, viewer *models.JWTClaims) (*models.DashboardSummary, error) {
	scope := viewer.SchoolName
	if viewer.Role == models.RoleSuperAdmin {
		scope = ""
	} else if scope == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no school scope")
	}

	key := cacheKey(scope)
	if s.cache != nil {
		var cached models.DashboardSummary
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	summary, err := s.build(ctx, scope)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}

	return summary, nil
}

func (s *DashboardService) build(ctx context.Context, scope string) (*models.DashboardSummary, error) {
	examCount, err := s.exams.CountBySchool(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count exams")
	}

	teacherCount, err := s.users.CountByRole(ctx, models.RoleTeacher, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}

	adminCount, err := s.users.CountByRole(ctx, models.RoleAdmin, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}

	recent, err := s.activity.List(ctx, scope, dashboardRecentActivity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent activity")
	}

	return &models.DashboardSummary{
		SchoolName:     scope,
		ExamCount:      examCount,
		TeacherCount:   teacherCount,
		AdminCount:     adminCount,
		RecentActivity: recent,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

func cacheKey(scope string) string {
	if scope == "" {
		return "dashboard:summary:all"
	}
	return fmt.Sprintf("dashboard:summary:%s", scope)
}
