package chat

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; transports wrap them in *APIError.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuth          = errors.New("not authenticated")
	ErrNetwork       = errors.New("backend unreachable")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("access denied")
	ErrSessionClosed = errors.New("session closed")
)

// APIError describes a failed transport call.
type APIError struct {
	Op      string // transport operation, e.g. "list_rooms"
	Status  int    // HTTP status, 0 when no response was received
	Message string
	Kind    error // one of the Err* sentinels, or nil
	Err     error // underlying cause, if any
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether a failed foreground call may be offered a retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
