package sakan

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the stores distinguish. Permission
// and validation failures are terminal and never retried; transient failures
// may be retried (fetches once, mutations never).
var (
	ErrPermission = errors.New("permission denied")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrClosed     = errors.New("store closed")
)

// permissionError wraps ErrPermission with a human-readable reason.
func permissionError(reason string) error {
	return fmt.Errorf("%w: %s", ErrPermission, reason)
}

// validationError wraps ErrValidation with the field-level reason.
func validationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// IsTransient reports whether an error is worth a degraded-read fallback and
// a scheduled fetch retry. Anything that is not a terminal class counts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPermission) &&
		!errors.Is(err, ErrValidation) &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrClosed)
}
