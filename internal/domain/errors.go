package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the business-rule failures every operation can
// report. Stores wrap these with context (fmt.Errorf + %w); the API layer
// matches them with errors.Is and translates to HTTP status codes in one
// place. All four are terminal for the triggering operation; callers
// must not retry.
var (
	// ErrValidation: malformed input. Empty greenhouse name, setpoint out
	// of range, more than three secondaries, copying a module onto itself.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden: the caller is not the owner of the referenced entity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict: the operation lost to current state. Module already
	// claimed, or unclaiming a greenhouse's main module while other
	// members remain.
	ErrConflict = errors.New("conflict")

	// ErrNotFound: the referenced id does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Forbiddenf wraps ErrForbidden with a caller-facing message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a caller-facing message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a caller-facing message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
