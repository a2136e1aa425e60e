package notification

import "errors"

var (
	// ErrNotFound indicates a missing notification.
	ErrNotFound = errors.New("notification: not found")
	// ErrValidation indicates a structurally invalid request.
	ErrValidation = errors.New("notification: validation failed")
	// ErrInvalidTransition indicates a delivery status change outside a single dispatch pass.
	ErrInvalidTransition = errors.New("notification: invalid delivery transition")
)
