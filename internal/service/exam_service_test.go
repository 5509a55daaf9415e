package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type mockExamRepo struct {
	exams    map[string]*models.Exam
	upserted []*models.Exam
	deleted  []string
}

func newMockExamRepo(exams ...*models.Exam) *mockExamRepo {
	repo := &mockExamRepo{exams: make(map[string]*models.Exam)}
	for _, e := range exams {
		repo.exams[e.ID] = e
	}
	return repo
}

func (m *mockExamRepo) Upsert(ctx context.Context, exam *models.Exam) error {
	m.exams[exam.ID] = exam
	m.upserted = append(m.upserted, exam)
	return nil
}

func (m *mockExamRepo) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamRepo) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	var out []models.Exam
	for _, e := range m.exams {
		if filter.SchoolName != "" && e.SchoolName != filter.SchoolName {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *mockExamRepo) Delete(ctx context.Context, id string) error {
	delete(m.exams, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func storedExam() *models.Exam {
	return &models.Exam{
		ID:         "exam-1",
		UserID:     "user-1",
		AuthorName: "مریم کریمی",
		SchoolName: "دبستان شهید بهشتی",
		Title:      "آزمون کسرها",
		Topic:      "کسرها",
		GradeLevel: "سوم دبستان",
		Questions: models.QuestionList{
			{
				ID:   "q-1",
				Type: models.QuestionMultipleChoice,
				Segments: []models.QuestionSegment{
					{Type: models.SegmentText, Content: "حاصل"},
					{Type: models.SegmentMath, Content: "1/2 + 1/4"},
				},
				QuestionText: "حاصل 1/2 + 1/4",
				Points:       2,
			},
			{
				ID:           "q-2",
				Type:         models.QuestionDescriptive,
				Segments:     []models.QuestionSegment{{Type: models.SegmentText, Content: "توضیح دهید"}},
				QuestionText: "توضیح دهید",
				Points:       3,
			},
		},
	}
}

func newExamService(repo *mockExamRepo, activity *mockActivityLog, duplicateEnabled bool) *ExamService {
	return NewExamService(repo, activity, nil, validator.New(), zap.NewNop(), duplicateEnabled)
}

func ownerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher, FullName: "مریم کریمی", SchoolName: "دبستان شهید بهشتی"}
}

func TestExamServiceListScopesTeacherToSchool(t *testing.T) {
	mine := storedExam()
	other := storedExam()
	other.ID = "exam-2"
	other.UserID = "user-9"
	foreign := storedExam()
	foreign.ID = "exam-3"
	foreign.SchoolName = "مدرسه دیگر"

	svc := newExamService(newMockExamRepo(mine, other, foreign), nil, false)

	exams, page, err := svc.List(context.Background(), ownerClaims(), models.ExamFilter{})
	require.NoError(t, err)
	assert.Len(t, exams, 2, "teachers browse the whole school archive")
	assert.Equal(t, 2, page.TotalCount)
}

func TestExamServiceListDeniedWithoutSchool(t *testing.T) {
	svc := newExamService(newMockExamRepo(storedExam()), nil, false)

	schoolless := &models.JWTClaims{UserID: "ghost", Role: models.RoleTeacher}
	_, _, err := svc.List(context.Background(), schoolless, models.ExamFilter{})
	require.Error(t, err, "a teacher without a school must not fall through to the global archive")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExamServiceUpdateEditsTitleAndSegmentsOnly(t *testing.T) {
	repo := newMockExamRepo(storedExam())
	activity := &mockActivityLog{}
	svc := newExamService(repo, activity, false)

	updated, err := svc.Update(context.Background(), ownerClaims(), "exam-1", UpdateExamRequest{
		Title: "آزمون اصلاح شده",
		Questions: []UpdateQuestionRequest{
			{ID: "q-1", Segments: []string{"حاصل جمع", "1/2 + 1/4"}},
			{ID: "missing", Segments: []string{"ignored"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "آزمون اصلاح شده", updated.Title)
	assert.Equal(t, "حاصل جمع", updated.Questions[0].Segments[0].Content)
	assert.Equal(t, "حاصل جمع 1/2 + 1/4", updated.Questions[0].QuestionText)
	assert.Equal(t, float64(2), updated.Questions[0].Points, "points are not editable")
	assert.Len(t, updated.Questions, 2, "question structure is not editable")

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityUpdateExam, activity.entries[0].Action)
}

func TestExamServiceUpdateForbiddenForColleague(t *testing.T) {
	svc := newExamService(newMockExamRepo(storedExam()), nil, false)

	colleague := &models.JWTClaims{UserID: "user-2", Role: models.RoleTeacher, SchoolName: "دبستان شهید بهشتی"}
	_, err := svc.Update(context.Background(), colleague, "exam-1", UpdateExamRequest{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExamServiceDeleteIsIdempotent(t *testing.T) {
	repo := newMockExamRepo(storedExam())
	activity := &mockActivityLog{}
	svc := newExamService(repo, activity, false)

	require.NoError(t, svc.Delete(context.Background(), ownerClaims(), "exam-1"))
	require.NoError(t, svc.Delete(context.Background(), ownerClaims(), "exam-1"), "deleting an absent exam succeeds")

	assert.Len(t, repo.deleted, 1)
	assert.Len(t, activity.entries, 1)
}

func TestExamServiceDeleteHidesForeignSchools(t *testing.T) {
	repo := newMockExamRepo(storedExam())
	svc := newExamService(repo, nil, false)

	// out of scope answers exactly like an absent id
	outsider := &models.JWTClaims{UserID: "x", Role: models.RoleTeacher, SchoolName: "مدرسه دیگر"}
	require.NoError(t, svc.Delete(context.Background(), outsider, "exam-1"))
	assert.Empty(t, repo.deleted, "foreign exams stay untouched")
	assert.Contains(t, repo.exams, "exam-1")

	// a colleague sees the exam, so the refusal is explicit
	colleague := &models.JWTClaims{UserID: "user-2", Role: models.RoleTeacher, SchoolName: "دبستان شهید بهشتی"}
	err := svc.Delete(context.Background(), colleague, "exam-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExamServiceDeleteRefreshesDashboardCache(t *testing.T) {
	repo := newMockExamRepo(storedExam())
	invalidator := &mockSummaryInvalidator{}
	svc := NewExamService(repo, nil, invalidator, validator.New(), zap.NewNop(), false)

	require.NoError(t, svc.Delete(context.Background(), ownerClaims(), "exam-1"))
	require.Len(t, invalidator.patterns, 1)
	assert.Equal(t, "dashboard:summary:*", invalidator.patterns[0])

	// the second delete is a no-op and must not churn the cache
	require.NoError(t, svc.Delete(context.Background(), ownerClaims(), "exam-1"))
	assert.Len(t, invalidator.patterns, 1)
}

func TestExamServiceDuplicateDisabledByDefault(t *testing.T) {
	svc := newExamService(newMockExamRepo(storedExam()), nil, false)

	_, err := svc.Duplicate(context.Background(), ownerClaims(), "exam-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFeatureDisabled.Code, appErrors.FromError(err).Code)
}

func TestExamServiceDuplicateClonesWithFreshIDs(t *testing.T) {
	repo := newMockExamRepo(storedExam())
	activity := &mockActivityLog{}
	svc := newExamService(repo, activity, true)

	actor := &models.JWTClaims{UserID: "user-2", Role: models.RoleTeacher, FullName: "رضا احمدی", SchoolName: "دبستان شهید بهشتی"}
	clone, err := svc.Duplicate(context.Background(), actor, "exam-1")
	require.NoError(t, err)

	assert.NotEqual(t, "exam-1", clone.ID)
	assert.Equal(t, "user-2", clone.UserID)
	assert.Equal(t, "رضا احمدی", clone.AuthorName)
	require.Len(t, clone.Questions, 2)
	assert.NotEqual(t, "q-1", clone.Questions[0].ID)
	assert.Equal(t, "حاصل 1/2 + 1/4", clone.Questions[0].QuestionText)

	original := repo.exams["exam-1"]
	assert.Equal(t, "q-1", original.Questions[0].ID, "source exam stays untouched")

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityDuplicateExam, activity.entries[0].Action)
}
