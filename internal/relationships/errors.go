package relationships

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrExtractionFailed is wrapped by every ExtractionError.
var ErrExtractionFailed = errors.New("relationship extraction failed")

// ErrNoTags is returned by a tagger that produced nothing usable.
var ErrNoTags = errors.New("no tags extracted")

// ExtractionError reports the terms a Process call could not complete.
type ExtractionError struct {
	Stage   string
	TermIDs []uuid.UUID
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s stage for %d term(s): %v", ErrExtractionFailed, e.Stage, len(e.TermIDs), e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}
