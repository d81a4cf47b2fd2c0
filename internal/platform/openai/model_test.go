package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/generation"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewModel(config.LLMConfig{
		Provider:             "openai",
		OpenAIAPIKey:         "sk-test",
		OpenAIBaseURL:        srv.URL + "/v1",
		ModelName:            "gpt-test",
		InputCostPerMillion:  0.5,
		OutputCostPerMillion: 1.5,
	}, nil)
	require.NoError(t, err)
	return m
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewModelValidation(t *testing.T) {
	_, err := NewModel(config.LLMConfig{ModelName: "gpt-test"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewModel(config.LLMConfig{OpenAIAPIKey: "sk-test"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestCompleteSuccess(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
		assert.Len(t, req["messages"], 2)

		writeJSON(w, http.StatusOK, `{
			"id": "cmpl-1",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"terms\":[]}"}}],
			"usage": {"prompt_tokens": 2000, "completion_tokens": 1000, "total_tokens": 3000}
		}`)
	})

	got, err := m.Complete(context.Background(), generation.Request{
		System: "be precise", Prompt: "list terms", JSON: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"terms":[]}`, got.Text)
	assert.Equal(t, 3000, got.Usage.TotalTokens)
	assert.InDelta(t, 0.0025, got.Usage.CostUSD, 1e-12)
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
			body:    `{"error":{"message":"slow down","type":"rate_limit_error","code":"rate_limit_exceeded"}}`,
			wantErr: generation.ErrTransientFailure,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `{"error":{"message":"bad gateway","type":"server_error"}}`,
			wantErr: generation.ErrTransientFailure,
		},
		{
			name:    "bad key",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantErr: generation.ErrInvalidConfig,
		},
		{
			name:    "content policy",
			status:  http.StatusBadRequest,
			body:    `{"error":{"message":"flagged","type":"invalid_request_error","code":"content_policy_violation"}}`,
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "content filter finish",
			status:  http.StatusOK,
			body:    `{"choices":[{"index":0,"finish_reason":"content_filter","message":{"role":"assistant","content":""}}]}`,
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: generation.ErrInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := m.Complete(context.Background(), generation.Request{Prompt: "list terms"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCompleteHonorsCancellation(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Complete(ctx, generation.Request{Prompt: "list terms"})
	assert.ErrorIs(t, err, context.Canceled)
}
