package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service/auth"
)

type fakeJWTService struct {
	claims *auth.Claims
	err    error
	token  string
}

func (f *fakeJWTService) GenerateToken(context.Context, uuid.UUID, auth.Role) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeJWTService) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	f.token = token
	return f.claims, f.err
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name           string
		authHeader     string
		validateErr    error
		claims         *auth.Claims
		expectedStatus int
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer valid-token",
			claims:         &auth.Claims{UserID: userID, Role: auth.RoleModerator},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing auth header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid auth format",
			authHeader:     "Token abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer expired-token",
			validateErr:    auth.ErrExpiredToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong token type",
			authHeader:     "Bearer refresh-token",
			validateErr:    auth.ErrWrongTokenType,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected error",
			authHeader:     "Bearer some-token",
			validateErr:    errors.New("keystore unavailable"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeJWTService{claims: tt.claims, err: tt.validateErr}
			var gotUser uuid.UUID
			var gotRole auth.Role
			handler := NewAuthMiddleware(svc).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r)
				gotRole, _ = GetRole(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "valid-token", svc.token)
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, auth.RoleModerator, gotRole)
			}
		})
	}
}

func TestRequireModerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		role   auth.Role
		status int
	}{
		{"user is forbidden", auth.RoleUser, http.StatusForbidden},
		{"moderator passes", auth.RoleModerator, http.StatusOK},
		{"admin passes", auth.RoleAdmin, http.StatusOK},
		{"no role", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeJWTService{claims: &auth.Claims{UserID: uuid.New(), Role: tt.role}}
			inner := RequireModerator(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			handler := NewAuthMiddleware(svc).Authenticate(inner)

			req := httptest.NewRequest(http.MethodGet, "/api/review", nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	handler := TraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/graph/stats", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	entries, err := buf.Entries()
	assert.NoError(t, err)
	var traced int
	for _, e := range entries {
		if id, ok := e["trace_id"].(string); ok && len(id) == 32 {
			traced++
		}
	}
	assert.Equal(t, 2, traced)
}
