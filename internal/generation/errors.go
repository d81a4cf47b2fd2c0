package generation

import (
	"errors"
	"fmt"
)

// ErrGenerationFailed is the root of every generation failure surfaced to
// callers. Model output is never substituted with fabricated content.
var ErrGenerationFailed = errors.New("generation failed")

// Common errors returned by the generation package
var (
	// ErrInvalidResponse is returned when the model response is not valid
	// JSON or omits required fields.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response from language model", ErrGenerationFailed)

	// ErrGenerationTimeout is returned when a model call exceeds its deadline.
	ErrGenerationTimeout = fmt.Errorf("%w: generation timeout", ErrGenerationFailed)

	// ErrRetriesExhausted is returned when transient failures persist past
	// the retry budget.
	ErrRetriesExhausted = fmt.Errorf("%w: retries exhausted", ErrGenerationFailed)

	// ErrContentBlocked is returned when the model blocks the content due to
	// safety filters. It is never retried.
	ErrContentBlocked = fmt.Errorf("%w: content blocked by language model safety filters", ErrGenerationFailed)

	// ErrTransientFailure is returned by adapters for failures that might
	// resolve on retry, such as rate limiting or server errors.
	ErrTransientFailure = fmt.Errorf("%w: transient model failure", ErrGenerationFailed)
)

// ErrInvalidConfig is returned when a model adapter or the orchestrator is
// misconfigured.
var ErrInvalidConfig = errors.New("invalid generator configuration")

// ErrInvalidParams is returned when request parameters are rejected up front.
var ErrInvalidParams = errors.New("invalid generation parameters")

// UsageError wraps a failure that happened after model calls had already
// consumed tokens. Callers meter Usage before surfacing Err.
type UsageError struct {
	Usage Usage
	Err   error
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying failure.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// ConsumedUsage returns the usage carried by err, if any.
func ConsumedUsage(err error) (Usage, bool) {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Usage, true
	}
	return Usage{}, false
}

// IsRetryable reports whether a model error may succeed on another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrInvalidParams) {
		return false
	}
	return true
}
