package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/quota"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
)

func TestGenerationHandler_Generate(t *testing.T) {
	userID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	tests := []struct {
		name           string
		body           interface{}
		userID         uuid.UUID
		svcErr         error
		expectedStatus int
		expectedErrMsg string
		check          func(t *testing.T, w *httptest.ResponseRecorder, svc *fakeGenerationService)
	}{
		{
			name: "success",
			body: map[string]interface{}{
				"topic":         "quantum computing",
				"count":         5,
				"pipeline":      "source-first",
				"existingTerms": []string{"qubit", "superposition"},
			},
			userID:         userID,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, w *httptest.ResponseRecorder, svc *fakeGenerationService) {
				assert.Equal(t, userID, svc.userID)
				assert.Equal(t, "quantum computing", svc.req.Topic)
				assert.Equal(t, generation.PipelineSourceFirst, svc.req.Pipeline)
				assert.Equal(t, []string{"qubit", "superposition"}, svc.req.ExistingTerms)

				var out service.Outcome
				decodeBody(t, w, &out)
				assert.Equal(t, 3, out.Counts.Stored)
			},
		},
		{
			name:           "missing topic",
			body:           map[string]interface{}{"count": 5},
			userID:         userID,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid topic: required field",
		},
		{
			name:           "unknown pipeline",
			body:           map[string]interface{}{"topic": "optics", "pipeline": "vibes"},
			userID:         userID,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid pipeline: invalid value",
		},
		{
			name:           "malformed body",
			body:           `{"topic":`,
			userID:         userID,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request body",
		},
		{
			name:           "unauthenticated",
			body:           map[string]interface{}{"topic": "optics"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "service rejects params",
			body:           map[string]interface{}{"topic": "optics", "count": 500},
			userID:         userID,
			svcErr:         fmt.Errorf("%w: %w: count too large", service.ErrInvalidRequest, generation.ErrInvalidParams),
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid generation parameters",
		},
		{
			name:           "generation timeout",
			body:           map[string]interface{}{"topic": "optics"},
			userID:         userID,
			svcErr:         &service.GenerationServiceError{Operation: "generate", Err: generation.ErrGenerationTimeout},
			expectedStatus: http.StatusGatewayTimeout,
			expectedErrMsg: "Generation timed out",
		},
		{
			name:           "generation failure",
			body:           map[string]interface{}{"topic": "optics"},
			userID:         userID,
			svcErr:         fmt.Errorf("%w: model said no", generation.ErrRetriesExhausted),
			expectedStatus: http.StatusBadGateway,
			expectedErrMsg: "Generation failed",
		},
		{
			name:           "unexpected failure",
			body:           map[string]interface{}{"topic": "optics"},
			userID:         userID,
			svcErr:         errors.New("pq: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedErrMsg: "Failed to generate terms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeGenerationService{
				outcome: &service.Outcome{Counts: service.Counts{Stored: 3}},
				err:     tt.svcErr,
			}
			h := NewGenerationHandler(svc, &fakeQuotaReader{}, discard)

			w := httptest.NewRecorder()
			h.Generate(w, newRequest(t, http.MethodPost, "/api/generate", tt.body, tt.userID, auth.RoleUser))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedErrMsg != "" {
				var resp shared.ErrorResponse
				decodeBody(t, w, &resp)
				assert.Equal(t, tt.expectedErrMsg, resp.Error)
				assert.NotContains(t, w.Body.String(), "pq:")
			}
			if tt.check != nil {
				tt.check(t, w, svc)
			}
		})
	}
}

func TestGenerationHandler_QuotaExceeded(t *testing.T) {
	svc := &fakeGenerationService{err: &quota.ExceededError{Decision: quota.Decision{
		Reason:     quota.ReasonRateLimited,
		Message:    "Hourly token limit reached",
		Suggestion: "Upgrade to the basic tier",
		RetryAfter: 90*time.Second + 300*time.Millisecond,
	}}}
	h := NewGenerationHandler(svc, &fakeQuotaReader{}, discard)

	w := httptest.NewRecorder()
	h.Generate(w, newRequest(t, http.MethodPost, "/api/generate",
		map[string]interface{}{"topic": "optics"}, uuid.New(), auth.RoleUser))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "91", w.Header().Get("Retry-After"))

	var resp shared.ErrorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "Hourly token limit reached", resp.Error)
	assert.Equal(t, "rate_limited", resp.Reason)
	assert.Equal(t, 91, resp.RetryAfterSeconds)
	assert.Equal(t, "Upgrade to the basic tier", resp.Suggestion)
}

func TestGenerationHandler_GetQuota(t *testing.T) {
	self := uuid.New()
	other := uuid.New()

	tests := []struct {
		name           string
		caller         uuid.UUID
		role           auth.Role
		target         string
		readerErr      error
		expectedStatus int
	}{
		{"own quota", self, auth.RoleUser, self.String(), nil, http.StatusOK},
		{"admin reads other", self, auth.RoleAdmin, other.String(), nil, http.StatusOK},
		{"user reads other", self, auth.RoleUser, other.String(), nil, http.StatusForbidden},
		{"moderator reads other", self, auth.RoleModerator, other.String(), nil, http.StatusForbidden},
		{"invalid id", self, auth.RoleUser, "not-a-uuid", nil, http.StatusBadRequest},
		{"reader failure", self, auth.RoleUser, self.String(), errors.New("redis down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeQuotaReader{
				status: &domain.QuotaStatus{UserID: self, Tier: domain.TierFree},
				err:    tt.readerErr,
			}
			h := NewGenerationHandler(&fakeGenerationService{}, reader, discard)

			w := httptest.NewRecorder()
			h.GetQuota(w, newRequest(t, http.MethodGet, "/api/quota/"+tt.target, nil, tt.caller, tt.role,
				"userId", tt.target))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.target, reader.asked.String())
			}
		})
	}
}

func TestNewGenerationHandlerPanics(t *testing.T) {
	assert.Panics(t, func() { NewGenerationHandler(nil, &fakeQuotaReader{}, discard) })
	assert.Panics(t, func() { NewGenerationHandler(&fakeGenerationService{}, &fakeQuotaReader{}, nil) })
}
