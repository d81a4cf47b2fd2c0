package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/generation"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:             "gemini",
		GeminiAPIKey:         "test-key",
		GeminiBaseURL:        baseURL,
		ModelName:            "gemini-test",
		InputCostPerMillion:  1,
		OutputCostPerMillion: 2,
	}
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewModel(context.Background(), testLLMConfig(srv.URL), nil)
	require.NoError(t, err)
	return m
}

func TestNewModelValidation(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.GeminiAPIKey = ""
	_, err := NewModel(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	cfg = testLLMConfig("")
	cfg.ModelName = ""
	_, err = NewModel(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestCompleteSuccess(t *testing.T) {
	var captured map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"terms\":"}, {"text": "[]}"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 1000, "candidatesTokenCount": 500, "totalTokenCount": 1500}
		}`)
	})

	got, err := m.Complete(context.Background(), generation.Request{
		System: "be precise", Prompt: "list terms", Temperature: 0.3, JSON: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"terms":[]}`, got.Text)
	assert.Equal(t, 1000, got.Usage.PromptTokens)
	assert.Equal(t, 500, got.Usage.CompletionTokens)
	assert.Equal(t, 1500, got.Usage.TotalTokens)
	assert.InDelta(t, 0.002, got.Usage.CostUSD, 1e-12)

	assert.Contains(t, captured, "systemInstruction")
	assert.Contains(t, captured, "generationConfig")
	assert.Equal(t, "gemini-test", m.Name())
}

func TestCompleteErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			wantErr: generation.ErrTransientFailure,
		},
		{
			name:    "server error",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`,
			wantErr: generation.ErrTransientFailure,
		},
		{
			name:    "bad key",
			status:  http.StatusForbidden,
			body:    `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`,
			wantErr: generation.ErrInvalidConfig,
		},
		{
			name:    "safety block",
			status:  http.StatusOK,
			body:    `{"candidates":[{"content":{"parts":[{"text":""}]},"finishReason":"SAFETY"}]}`,
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "prompt blocked",
			status:  http.StatusOK,
			body:    `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "no candidates",
			status:  http.StatusOK,
			body:    `{"candidates":[]}`,
			wantErr: generation.ErrInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := m.Complete(context.Background(), generation.Request{Prompt: "list terms"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCompletionFromResponse(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		_, err := completionFromResponse(nil, generation.Pricing{})
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})

	t.Run("total derived when missing", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "{}"}}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 5,
			},
		}
		got, err := completionFromResponse(resp, generation.Pricing{})
		require.NoError(t, err)
		assert.Equal(t, 15, got.Usage.TotalTokens)
	})

	t.Run("blank text", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "  "}}}}},
		}
		_, err := completionFromResponse(resp, generation.Pricing{})
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})
}
