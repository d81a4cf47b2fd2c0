package quota

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded is matched by every ExceededError.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrInvalidUsage is returned when negative usage is reported.
var ErrInvalidUsage = errors.New("usage cannot be negative")

// ExceededError carries the rejected decision so callers can surface the
// reason, retry hint and suggestion.
type ExceededError struct {
	Decision Decision
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	if e.Decision.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", ErrQuotaExceeded, e.Decision.Reason,
			e.Decision.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded, e.Decision.Reason)
}

// Is reports whether target is ErrQuotaExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
