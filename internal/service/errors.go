package service

import "errors"

// Service errors checked by the API layer with errors.Is.
var (
	// ErrInvalidRequest indicates a request that failed validation before any
	// work was done. The API layer maps it to 400.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTermNotFound indicates the requested term does not exist.
	ErrTermNotFound = errors.New("term not found")

	// ErrTopicNotFound indicates the requested topic does not exist.
	ErrTopicNotFound = errors.New("topic not found")
)

// GenerationServiceError wraps a failure of one ingestion step.
type GenerationServiceError struct {
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *GenerationServiceError) Error() string {
	return "generation " + e.Operation + " failed: " + e.Err.Error()
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *GenerationServiceError) Unwrap() error {
	return e.Err
}

func stepError(op string, err error) error {
	return &GenerationServiceError{Operation: op, Err: err}
}
