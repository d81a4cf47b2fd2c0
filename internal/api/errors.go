package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/quota"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
	"github.com/phrazzld/lexis-api/internal/store"
)

// errBadRequest marks request decoding and parameter errors raised by the
// handlers themselves.
var errBadRequest = errors.New("bad request")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests

	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrTermNotFound),
		errors.Is(err, service.ErrTopicNotFound),
		errors.Is(err, review.ErrItemNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, generation.ErrInvalidParams),
		errors.Is(err, review.ErrInvalidAction),
		errors.Is(err, review.ErrInvalidFilter),
		errors.Is(err, review.ErrInvalidBulk),
		errors.Is(err, freshness.ErrInvalidOptions),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Upstream errors; the timeout check must precede the generic failure
	case errors.Is(err, generation.ErrGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, generation.ErrGenerationFailed),
		errors.Is(err, freshness.ErrDiscoveryFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		if exceeded.Decision.Message != "" {
			return exceeded.Decision.Message
		}
		return "Quota exceeded"

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, domain.ErrUnauthorized):
		return "You are not allowed to perform this action"

	case errors.Is(err, service.ErrTermNotFound):
		return "Term not found"
	case errors.Is(err, service.ErrTopicNotFound):
		return "Topic not found"
	case errors.Is(err, review.ErrItemNotFound):
		return "Review item not found"
	case errors.Is(err, store.ErrMonitoringJobNotFound):
		return "Monitoring job not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, review.ErrInvalidAction):
		return "Invalid review action"
	case errors.Is(err, review.ErrInvalidBulk):
		return "Invalid bulk request"
	case errors.Is(err, review.ErrInvalidFilter):
		return "Invalid review filter"
	case errors.Is(err, freshness.ErrInvalidOptions):
		return "Invalid monitoring options"
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, generation.ErrInvalidParams):
		return "Invalid generation parameters"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, generation.ErrGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return "Generation timed out"
	case errors.Is(err, generation.ErrContentBlocked):
		return "Content was blocked by the model provider"
	case errors.Is(err, generation.ErrGenerationFailed):
		return "Generation failed"
	case errors.Is(err, freshness.ErrDiscoveryFailed):
		return "Source discovery failed"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err. A
// non-empty fallback replaces the generic message of 500 responses. Quota
// rejections also carry the reason, retry hint and suggestion, plus a
// Retry-After header when a retry time is known.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		d := exceeded.Decision
		if secs := d.RetryAfterSeconds(); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		opts = append(opts, shared.WithDetails(func(e *shared.ErrorResponse) {
			e.Reason = string(d.Reason)
			e.RetryAfterSeconds = d.RetryAfterSeconds()
			e.Suggestion = d.Suggestion
		}))
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", lowerFirst(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	if strings.Contains(err.Error(), "invalid request body") {
		return "Invalid request body"
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
