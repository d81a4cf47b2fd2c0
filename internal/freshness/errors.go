package freshness

import "errors"

var (
	// ErrInvalidOptions is returned when StartOptions are out of range.
	ErrInvalidOptions = errors.New("invalid monitoring options")

	// ErrDiscoveryFailed is returned when the initial discovery pass fails.
	ErrDiscoveryFailed = errors.New("source discovery failed")
)
