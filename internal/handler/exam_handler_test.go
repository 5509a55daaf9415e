package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/genai"
	"github.com/aftab-edu/exam-studio-api/internal/middleware"
	"github.com/aftab-edu/exam-studio-api/internal/models"
	"github.com/aftab-edu/exam-studio-api/internal/service"
	"github.com/aftab-edu/exam-studio-api/pkg/export"
	"github.com/aftab-edu/exam-studio-api/pkg/storage"
)

type fakeExamRepo struct {
	exams map[string]*models.Exam
}

func newFakeExamRepo(exams ...*models.Exam) *fakeExamRepo {
	repo := &fakeExamRepo{exams: make(map[string]*models.Exam)}
	for _, e := range exams {
		repo.exams[e.ID] = e
	}
	return repo
}

func (f *fakeExamRepo) Upsert(ctx context.Context, exam *models.Exam) error {
	f.exams[exam.ID] = exam
	return nil
}

func (f *fakeExamRepo) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if e, ok := f.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeExamRepo) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	var out []models.Exam
	for _, e := range f.exams {
		if filter.SchoolName != "" && e.SchoolName != filter.SchoolName {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f *fakeExamRepo) Delete(ctx context.Context, id string) error {
	delete(f.exams, id)
	return nil
}

type fakeGenClient struct {
	payload *genai.ExamPayload
	err     error
}

func (f *fakeGenClient) Enabled() bool { return true }

func (f *fakeGenClient) GenerateExam(ctx context.Context, systemInstruction, prompt string) (*genai.ExamPayload, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.payload, "raw", nil
}

type fakeResourceLister struct{}

func (fakeResourceLister) ListBySchool(ctx context.Context, schoolName string) ([]models.SchoolResource, error) {
	return nil, nil
}

func testExam() *models.Exam {
	return &models.Exam{
		ID:         "exam-1",
		UserID:     "user-1",
		AuthorName: "مریم کریمی",
		SchoolName: "دبستان شهید بهشتی",
		Title:      "آزمون کسرها",
		Topic:      "کسرها",
		GradeLevel: "سوم دبستان",
		Questions: models.QuestionList{
			{ID: "q-1", Type: models.QuestionDescriptive, QuestionText: "توضیح دهید", Segments: []models.QuestionSegment{{Type: models.SegmentText, Content: "توضیح دهید"}}, Points: 3},
		},
	}
}

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher, FullName: "مریم کریمی", SchoolName: "دبستان شهید بهشتی"}
}

func newTestExamHandler(t *testing.T, repo *fakeExamRepo, client *fakeGenClient) *ExamHandler {
	t.Helper()
	exams := service.NewExamService(repo, nil, nil, validator.New(), zap.NewNop(), false)
	generator := service.NewGeneratorService(client, repo, fakeResourceLister{}, nil, nil, nil, validator.New(), zap.NewNop(), service.GeneratorConfig{Timeout: time.Second})
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	renderer := export.NewSheetRenderer("")
	sheets := service.NewSheetService(repo, renderer, store, signer, zap.NewNop())
	return NewExamHandler(exams, generator, sheets, export.NewCSVExporter())
}

func performRequest(t *testing.T, handlerFn gin.HandlerFunc, method, target, body string, claims *models.JWTClaims, params ...gin.Param) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	c.Params = append(c.Params, params...)
	handlerFn(c)
	c.Writer.WriteHeaderNow()
	return rec
}

func TestExamHandlerListRequiresAuth(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(), &fakeGenClient{})

	rec := performRequest(t, handler.List, http.MethodGet, "/exams", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExamHandlerListReturnsSchoolArchive(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(testExam()), &fakeGenClient{})

	rec := performRequest(t, handler.List, http.MethodGet, "/exams", "", testClaims())
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data       []models.Exam      `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "آزمون کسرها", envelope.Data[0].Title)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestExamHandlerGenerateCreatesExam(t *testing.T) {
	repo := newFakeExamRepo()
	client := &fakeGenClient{payload: &genai.ExamPayload{
		Title: "آزمون کسرها",
		Questions: []genai.QuestionPayload{
			{Type: "descriptive", Segments: []genai.SegmentPayload{{Type: "text", Content: "توضیح دهید"}}, Points: 5},
		},
	}}
	handler := newTestExamHandler(t, repo, client)

	body := `{"topic":"کسرها","grade_level":"سوم دبستان","difficulty":"medium"}`
	rec := performRequest(t, handler.Generate, http.MethodPost, "/exams/generate", body, testClaims())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data models.Exam `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "آزمون کسرها", envelope.Data.Title)
	assert.Len(t, envelope.Data.Questions, 1)
	assert.Len(t, repo.exams, 1)
}

func TestExamHandlerGenerateRejectsInvalidPayload(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(), &fakeGenClient{})

	rec := performRequest(t, handler.Generate, http.MethodPost, "/exams/generate", `{"topic":""}`, testClaims())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExamHandlerUpdateEditsTitle(t *testing.T) {
	repo := newFakeExamRepo(testExam())
	handler := newTestExamHandler(t, repo, &fakeGenClient{})

	body := `{"title":"آزمون اصلاح شده"}`
	rec := performRequest(t, handler.Update, http.MethodPut, "/exams/exam-1", body, testClaims(), gin.Param{Key: "id", Value: "exam-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "آزمون اصلاح شده", repo.exams["exam-1"].Title)
}

func TestExamHandlerDeleteIsIdempotent(t *testing.T) {
	repo := newFakeExamRepo(testExam())
	handler := newTestExamHandler(t, repo, &fakeGenClient{})

	rec := performRequest(t, handler.Delete, http.MethodDelete, "/exams/exam-1", "", testClaims(), gin.Param{Key: "id", Value: "exam-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = performRequest(t, handler.Delete, http.MethodDelete, "/exams/exam-1", "", testClaims(), gin.Param{Key: "id", Value: "exam-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestExamHandlerDuplicateDisabled(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(testExam()), &fakeGenClient{})

	rec := performRequest(t, handler.Duplicate, http.MethodPost, "/exams/exam-1/duplicate", "", testClaims(), gin.Param{Key: "id", Value: "exam-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExamHandlerSheetFlow(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(testExam()), &fakeGenClient{})

	rec := performRequest(t, handler.RenderSheet, http.MethodPost, "/exams/exam-1/sheet", "", testClaims(), gin.Param{Key: "id", Value: "exam-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data service.SheetLink `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.Token)

	rec = performRequest(t, handler.DownloadSheet, http.MethodGet, "/sheets/download?token="+envelope.Data.Token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = performRequest(t, handler.DownloadSheet, http.MethodGet, "/sheets/download", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExamHandlerExportCSV(t *testing.T) {
	handler := newTestExamHandler(t, newFakeExamRepo(testExam()), &fakeGenClient{})

	rec := performRequest(t, handler.ExportCSV, http.MethodGet, "/exams/export", "", testClaims())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "آزمون کسرها")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "exams.csv")
}
