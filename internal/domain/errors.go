package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) or the helpers
// below; transports classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
	ErrConflict        = errors.New("conflict")
	ErrStorage         = errors.New("storage failure")
)

// Validationf returns a validation error with a caller-facing message.
func Validationf(format string, args ...any) error {
	return &KindError{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a not-found error.
func NotFoundf(format string, args ...any) error {
	return &KindError{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Forbiddenf returns an authorization error.
func Forbiddenf(format string, args ...any) error {
	return &KindError{Kind: ErrForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return &KindError{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// Unauthenticated is returned when an operation needs a signed-in caller.
func Unauthenticated() error {
	return &KindError{Kind: ErrUnauthenticated, Msg: "Authentication required"}
}

// Storage wraps a store failure, keeping the cause for logs.
func Storage(op string, err error) error {
	return &KindError{Kind: ErrStorage, Msg: op, Cause: err}
}

// KindError carries a kind sentinel plus a message safe to show callers.
type KindError struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Is matches the kind sentinel.
func (e *KindError) Is(target error) bool { return target == e.Kind }

func (e *KindError) Unwrap() error { return e.Cause }

// PublicMessage returns the caller-facing text for err. Storage failures
// never leak their cause.
func PublicMessage(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		if ke.Kind == ErrStorage {
			return "Internal server error"
		}
		return ke.Msg
	}
	switch {
	case errors.Is(err, ErrStorage):
		return "Internal server error"
	case err != nil:
		return err.Error()
	}
	return ""
}
