package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/quota"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
	"github.com/phrazzld/lexis-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"quota", &quota.ExceededError{Decision: quota.Decision{Reason: quota.ReasonCostGate}}, http.StatusTooManyRequests},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"term not found", service.ErrTermNotFound, http.StatusNotFound},
		{"review item not found", review.ErrItemNotFound, http.StatusNotFound},
		{"store not found", store.ErrMonitoringJobNotFound, http.StatusNotFound},
		{"invalid request", fmt.Errorf("%w: topic required", service.ErrInvalidRequest), http.StatusBadRequest},
		{"invalid bulk", review.ErrInvalidBulk, http.StatusBadRequest},
		{"invalid options", freshness.ErrInvalidOptions, http.StatusBadRequest},
		{"timeout", fmt.Errorf("step: %w", generation.ErrGenerationTimeout), http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"blocked", generation.ErrContentBlocked, http.StatusBadGateway},
		{"discovery", freshness.ErrDiscoveryFailed, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"quota message", &quota.ExceededError{Decision: quota.Decision{Message: "Daily cost limit reached"}}, "Daily cost limit reached"},
		{"quota default", &quota.ExceededError{}, "Quota exceeded"},
		{"term", fmt.Errorf("lookup: %w", service.ErrTermNotFound), "Term not found"},
		{"blocked", generation.ErrContentBlocked, "Content was blocked by the model provider"},
		{"timeout", generation.ErrGenerationTimeout, "Generation timed out"},
		{"leaky", errors.New("dial tcp 10.0.0.5:5432: password=secret"), "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetSafeErrorMessage(tt.err))
		})
	}
}
