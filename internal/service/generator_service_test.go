package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/genai"
	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type mockGenClient struct {
	enabled    bool
	payload    *genai.ExamPayload
	raw        string
	err        error
	lastPrompt string
	lastSystem string
}

func (m *mockGenClient) Enabled() bool { return m.enabled }

func (m *mockGenClient) GenerateExam(ctx context.Context, systemInstruction, prompt string) (*genai.ExamPayload, string, error) {
	m.lastSystem = systemInstruction
	m.lastPrompt = prompt
	if m.err != nil {
		return nil, "", m.err
	}
	return m.payload, m.raw, nil
}

type mockExamStore struct {
	upserted []*models.Exam
	err      error
}

func (m *mockExamStore) Upsert(ctx context.Context, exam *models.Exam) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, exam)
	return nil
}

type mockResourceLister struct {
	resources []models.SchoolResource
	err       error
}

func (m *mockResourceLister) ListBySchool(ctx context.Context, schoolName string) ([]models.SchoolResource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resources, nil
}

type mockGenObserver struct {
	started  int
	finished int
	success  bool
}

func (m *mockGenObserver) GenerationStarted() func(success bool) {
	m.started++
	return func(success bool) {
		m.finished++
		m.success = success
	}
}

func fractionsPayload() *genai.ExamPayload {
	questions := make([]genai.QuestionPayload, 0, 5)
	for i := 0; i < 5; i++ {
		questions = append(questions, genai.QuestionPayload{
			Type: "multiple_choice",
			Segments: []genai.SegmentPayload{
				{Type: "text", Content: "حاصل عبارت"},
				{Type: "math", Content: "\\frac{1}{2} + \\frac{1}{4}"},
				{Type: "text", Content: "کدام است؟"},
			},
			Points: 2,
		})
	}
	return &genai.ExamPayload{Title: "آزمون کسرها", Questions: questions}
}

func generatorActor() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:     "user-1",
		Role:       models.RoleTeacher,
		FullName:   "مریم کریمی",
		SchoolName: "دبستان شهید بهشتی",
	}
}

func fractionsParams() models.GenerateExamParams {
	return models.GenerateExamParams{
		Topic:      "کسرها",
		GradeLevel: "سوم دبستان",
		Difficulty: models.DifficultyMedium,
	}
}

func newGenerator(client *mockGenClient, store *mockExamStore, resources *mockResourceLister, activity *mockActivityLog, metrics *mockGenObserver) *GeneratorService {
	var activityDep activityRecorder
	if activity != nil {
		activityDep = activity
	}
	var metricsDep generationObserver
	if metrics != nil {
		metricsDep = metrics
	}
	return NewGeneratorService(client, store, resources, activityDep, metricsDep, nil, validator.New(), zap.NewNop(), GeneratorConfig{
		DefaultQuestionCount: 5,
		MaxQuestionCount:     25,
		Timeout:              time.Second,
	})
}

func TestGeneratorServiceGeneratesAndStoresExam(t *testing.T) {
	client := &mockGenClient{enabled: true, payload: fractionsPayload(), raw: `{"title":"آزمون کسرها"}`}
	store := &mockExamStore{}
	activity := &mockActivityLog{}
	metrics := &mockGenObserver{}
	svc := newGenerator(client, store, &mockResourceLister{}, activity, metrics)

	exam, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.NoError(t, err)

	assert.Equal(t, "آزمون کسرها", exam.Title)
	assert.Equal(t, "کسرها", exam.Topic)
	assert.Equal(t, "سوم دبستان", exam.GradeLevel)
	assert.Equal(t, "user-1", exam.UserID)
	assert.Equal(t, "دبستان شهید بهشتی", exam.SchoolName)
	assert.Equal(t, `{"title":"آزمون کسرها"}`, exam.RawContent)

	require.Len(t, exam.Questions, 5)
	seen := make(map[string]bool)
	for _, q := range exam.Questions {
		assert.Equal(t, models.QuestionMultipleChoice, q.Type)
		assert.NotEmpty(t, q.ID)
		assert.False(t, seen[q.ID], "question ids must be unique")
		seen[q.ID] = true
		assert.Equal(t, "حاصل عبارت \\frac{1}{2} + \\frac{1}{4} کدام است؟", q.QuestionText)
		require.Len(t, q.Segments, 3)
		assert.Equal(t, models.SegmentMath, q.Segments[1].Type)
	}
	assert.Equal(t, float64(10), exam.TotalPoints())

	require.Len(t, store.upserted, 1)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityCreateExam, activity.entries[0].Action)

	assert.Equal(t, 1, metrics.started)
	assert.Equal(t, 1, metrics.finished)
	assert.True(t, metrics.success)

	assert.Contains(t, client.lastPrompt, "کسرها")
	assert.Contains(t, client.lastPrompt, "سوم دبستان")
	assert.Contains(t, client.lastPrompt, "5")
}

func TestGeneratorServiceDefaultAndMaxQuestionCount(t *testing.T) {
	client := &mockGenClient{enabled: true, payload: fractionsPayload()}
	svc := newGenerator(client, &mockExamStore{}, &mockResourceLister{}, nil, nil)

	params := fractionsParams()
	params.QuestionCount = 100
	_, err := svc.Generate(context.Background(), generatorActor(), params)
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "25", "count must be clamped to the maximum")
}

func TestGeneratorServiceIncludesKnowledgeBase(t *testing.T) {
	client := &mockGenClient{enabled: true, payload: fractionsPayload()}
	resources := &mockResourceLister{resources: []models.SchoolResource{
		{Title: "کتاب ریاضی سوم", Content: "فصل چهارم کسرها"},
	}}
	svc := newGenerator(client, &mockExamStore{}, resources, nil, nil)

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "کتاب ریاضی سوم")
	assert.Contains(t, client.lastPrompt, "فصل چهارم کسرها")
}

func TestGeneratorServiceUnavailableWithoutAPIKey(t *testing.T) {
	svc := newGenerator(&mockGenClient{enabled: false}, &mockExamStore{}, &mockResourceLister{}, nil, nil)

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGenerationUnavailable.Code, appErrors.FromError(err).Code)
}

func TestGeneratorServiceMapsTimeout(t *testing.T) {
	client := &mockGenClient{enabled: true, err: context.DeadlineExceeded}
	metrics := &mockGenObserver{}
	svc := newGenerator(client, &mockExamStore{}, &mockResourceLister{}, nil, metrics)

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGenerationTimeout.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.finished, "in flight gauge must be released on failure")
	assert.False(t, metrics.success)
}

func TestGeneratorServiceMapsProviderFailure(t *testing.T) {
	client := &mockGenClient{enabled: true, err: errors.New("quota exceeded")}
	svc := newGenerator(client, &mockExamStore{}, &mockResourceLister{}, nil, nil)

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGenerationFailed.Code, appErrors.FromError(err).Code)
}

func TestGeneratorServiceSurfacesStoreFailure(t *testing.T) {
	client := &mockGenClient{enabled: true, payload: fractionsPayload()}
	store := &mockExamStore{err: errors.New("connection refused")}
	activity := &mockActivityLog{}
	svc := newGenerator(client, store, &mockResourceLister{}, activity, nil)

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.Error(t, err)
	assert.Empty(t, activity.entries, "failed generations must not be logged as created")
}

func TestGeneratorServiceRefreshesDashboardCache(t *testing.T) {
	client := &mockGenClient{enabled: true, payload: fractionsPayload()}
	invalidator := &mockSummaryInvalidator{}
	svc := NewGeneratorService(client, &mockExamStore{}, &mockResourceLister{}, nil, nil, invalidator, validator.New(), zap.NewNop(), GeneratorConfig{Timeout: time.Second})

	_, err := svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.NoError(t, err)
	require.Len(t, invalidator.patterns, 1)
	assert.Equal(t, "dashboard:summary:*", invalidator.patterns[0])

	client.err = errors.New("quota exceeded")
	_, err = svc.Generate(context.Background(), generatorActor(), fractionsParams())
	require.Error(t, err)
	assert.Len(t, invalidator.patterns, 1, "failed generations leave the cache alone")
}

func TestGeneratorServiceRejectsInvalidParams(t *testing.T) {
	svc := newGenerator(&mockGenClient{enabled: true}, &mockExamStore{}, &mockResourceLister{}, nil, nil)

	_, err := svc.Generate(context.Background(), generatorActor(), models.GenerateExamParams{Topic: "کسرها"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
