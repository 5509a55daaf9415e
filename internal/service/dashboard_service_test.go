package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type mockExamCounter struct {
	count int
	calls int
}

func (m *mockExamCounter) CountBySchool(ctx context.Context, schoolName string) (int, error) {
	m.calls++
	return m.count, nil
}

type mockUserCounter struct {
	teachers int
	admins   int
}

func (m *mockUserCounter) CountByRole(ctx context.Context, role models.UserRole, schoolName string) (int, error) {
	if role == models.RoleTeacher {
		return m.teachers, nil
	}
	return m.admins, nil
}

type mockActivityLister struct {
	entries []models.ActivityLog
}

func (m *mockActivityLister) List(ctx context.Context, schoolName string, limit int) ([]models.ActivityLog, error) {
	return m.entries, nil
}

type mockSummaryCache struct {
	store map[string][]byte
	sets  int
}

func (m *mockSummaryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.store == nil {
		return appErrors.ErrCacheMiss
	}
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	summary := dest.(*models.DashboardSummary)
	summary.SchoolName = string(raw)
	summary.ExamCount = 99
	return nil
}

func (m *mockSummaryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	m.store[key] = []byte("cached")
	m.sets++
	return nil
}

type mockSummaryInvalidator struct {
	patterns []string
	err      error
}

func (m *mockSummaryInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	if m.err != nil {
		return m.err
	}
	m.patterns = append(m.patterns, pattern)
	return nil
}

type mockCacheObserver struct {
	hits   int
	misses int
}

func (m *mockCacheObserver) RecordCacheOperation(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestDashboardServiceBuildsAndCachesSummary(t *testing.T) {
	exams := &mockExamCounter{count: 12}
	users := &mockUserCounter{teachers: 8, admins: 2}
	activity := &mockActivityLister{entries: []models.ActivityLog{{Action: models.ActivityLogin}}}
	cache := &mockSummaryCache{}
	observer := &mockCacheObserver{}
	svc := NewDashboardService(exams, users, activity, cache, observer, zap.NewNop(), time.Minute)

	viewer := adminClaims()
	summary, err := svc.Summary(context.Background(), viewer)
	require.NoError(t, err)

	assert.Equal(t, 12, summary.ExamCount)
	assert.Equal(t, 8, summary.TeacherCount)
	assert.Equal(t, 2, summary.AdminCount)
	assert.Len(t, summary.RecentActivity, 1)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, observer.misses)

	// second call is served from cache
	_, err = svc.Summary(context.Background(), viewer)
	require.NoError(t, err)
	assert.Equal(t, 1, exams.calls, "counters are not rebuilt on a cache hit")
	assert.Equal(t, 1, observer.hits)
}

func TestDashboardServiceDeniesSchoollessViewer(t *testing.T) {
	svc := NewDashboardService(&mockExamCounter{}, &mockUserCounter{}, &mockActivityLister{}, nil, nil, zap.NewNop(), time.Minute)

	schoolless := &models.JWTClaims{UserID: "ghost", Role: models.RoleAdmin}
	_, err := svc.Summary(context.Background(), schoolless)
	require.Error(t, err, "an empty school must not widen into the global summary")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDashboardServiceSuperAdminScopeIsGlobal(t *testing.T) {
	exams := &mockExamCounter{count: 40}
	svc := NewDashboardService(exams, &mockUserCounter{}, &mockActivityLister{}, nil, nil, zap.NewNop(), time.Minute)

	root := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin, SchoolName: "دفتر مرکزی"}
	summary, err := svc.Summary(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, summary.SchoolName)
	assert.Equal(t, 40, summary.ExamCount)
}
