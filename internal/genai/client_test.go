package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/pkg/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-3-pro-preview",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func candidateBody(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				},
			},
		},
	}
}

func TestGenerateExam_Success(t *testing.T) {
	examJSON := `{
		"title": "آزمون ریاضی",
		"questions": [
			{"type": "multiple_choice", "segments": [{"type": "text", "content": "حاصل"}, {"type": "math", "content": "2+2"}], "points": 2},
			{"type": "descriptive", "segments": [{"type": "text", "content": "توضیح دهید"}], "points": 3}
		]
	}`

	var gotRequest generateContentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-3-pro-preview:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(candidateBody(examJSON)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payload, raw, err := client.GenerateExam(context.Background(), "system prompt", "user prompt")

	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "آزمون ریاضی", payload.Title)
	require.Len(t, payload.Questions, 2)
	assert.Equal(t, "multiple_choice", payload.Questions[0].Type)
	assert.Len(t, payload.Questions[0].Segments, 2)
	assert.Equal(t, "math", payload.Questions[0].Segments[1].Type)
	assert.Equal(t, float64(2), payload.Questions[0].Points)
	assert.JSONEq(t, examJSON, raw)

	require.Len(t, gotRequest.Contents, 1)
	assert.Equal(t, "user prompt", gotRequest.Contents[0].Parts[0].Text)
	require.NotNil(t, gotRequest.SystemInstruction)
	assert.Equal(t, "system prompt", gotRequest.SystemInstruction.Parts[0].Text)
	require.NotNil(t, gotRequest.GenerationConfig)
	assert.Equal(t, "application/json", gotRequest.GenerationConfig.ResponseMIMEType)
	assert.NotEmpty(t, gotRequest.GenerationConfig.ResponseSchema)
}

func TestGenerateExam_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payload, _, err := client.GenerateExam(context.Background(), "sys", "prompt")

	require.Error(t, err)
	assert.Nil(t, payload)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateExam_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.GenerateExam(context.Background(), "sys", "prompt")

	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateExam_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(candidateBody("not valid json at all")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payload, raw, err := client.GenerateExam(context.Background(), "sys", "prompt")

	require.Error(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, "not valid json at all", raw)
	assert.Contains(t, err.Error(), "violates exam schema")
}

func TestGenerateExam_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := client.GenerateExam(ctx, "sys", "prompt")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateExam_NoAPIKey(t *testing.T) {
	client := NewClient(config.GeminiConfig{Model: "gemini-3-pro-preview", BaseURL: "http://localhost"}, nil)

	assert.False(t, client.Enabled())

	_, _, err := client.GenerateExam(context.Background(), "sys", "prompt")
	require.Error(t, err)
}
