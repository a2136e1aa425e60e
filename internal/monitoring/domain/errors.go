package monitoring

import "errors"

var (
	// ErrNotFound indicates a missing monitoring event.
	ErrNotFound = errors.New("monitoring: not found")
	// ErrValidation indicates a rejected measurement or query.
	ErrValidation = errors.New("monitoring: validation failed")
)
