// Package genai implements a thin REST client for the Google Generative
// Language API, constrained to the structured exam payload the generator
// expects.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/pkg/config"
)

// ErrEmptyResponse is returned when the provider answers without any usable
// candidate text.
var ErrEmptyResponse = errors.New("genai: empty response")

// SegmentPayload mirrors one segment of the structured response schema.
type SegmentPayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// QuestionPayload mirrors one question of the structured response schema.
type QuestionPayload struct {
	Type     string           `json:"type"`
	Segments []SegmentPayload `json:"segments"`
	Points   float64          `json:"points"`
}

// ExamPayload is the parsed structured response.
type ExamPayload struct {
	Title     string            `json:"title"`
	Questions []QuestionPayload `json:"questions"`
}

// Client calls the generateContent endpoint with a strict JSON output schema.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *zap.Logger
}

// NewClient builds a client from configuration. The HTTP timeout guards
// against the provider hanging; callers may tighten it further via context.
func NewClient(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

// Enabled reports whether the client holds credentials.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// examResponseSchema constrains the provider output to the exam document
// shape: a title plus an ordered list of typed, segmented questions.
var examResponseSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "title": {"type": "STRING"},
    "questions": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "type": {"type": "STRING", "description": "multiple_choice, descriptive, or fill_in_blank"},
          "segments": {
            "type": "ARRAY",
            "items": {
              "type": "OBJECT",
              "properties": {
                "type": {"type": "STRING", "description": "text or math"},
                "content": {"type": "STRING"}
              },
              "required": ["type", "content"],
              "propertyOrdering": ["type", "content"]
            }
          },
          "points": {"type": "NUMBER"}
        },
        "required": ["type", "segments", "points"],
        "propertyOrdering": ["type", "segments", "points"]
      }
    }
  },
  "required": ["title", "questions"],
  "propertyOrdering": ["title", "questions"]
}`)

// GenerateExam sends the prompt pair and parses the structured reply. The raw
// candidate text is returned verbatim alongside the parsed payload so callers
// can retain it for audit.
func (c *Client) GenerateExam(ctx context.Context, systemInstruction, prompt string) (*ExamPayload, string, error) {
	if !c.Enabled() {
		return nil, "", fmt.Errorf("genai: api key not configured")
	}

	reqBody := generateContentRequest{
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   examResponseSchema,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("genai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("genai: call provider: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, "", fmt.Errorf("genai: read response: %w", err)
	}

	c.logger.Debug("genai response received",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("model", c.model),
	)

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("genai: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, "", fmt.Errorf("genai: provider error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return nil, "", fmt.Errorf("genai: unexpected status %d", resp.StatusCode)
	}

	text := candidateText(parsed)
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyResponse
	}

	var exam ExamPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &exam); err != nil {
		return nil, text, fmt.Errorf("genai: response violates exam schema: %w", err)
	}
	if len(exam.Questions) == 0 {
		return nil, text, ErrEmptyResponse
	}

	return &exam, text, nil
}

func candidateText(resp generateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		break
	}
	return sb.String()
}
