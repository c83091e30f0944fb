package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine failure. The string value is the wire code.
type Kind string

const (
	KindValidation            Kind = "VALIDATION_FAILED"
	KindInvalidTransition     Kind = "INVALID_TRANSITION"
	KindInvalidRoomTransition Kind = "INVALID_ROOM_TRANSITION"
	KindNotAssigned           Kind = "NOT_ASSIGNED"
	KindNotFound              Kind = "NOT_FOUND"
	KindInsufficientStock     Kind = "INSUFFICIENT_STOCK"
	KindBusy                  Kind = "BUSY"
	KindIntegrity             Kind = "INTEGRITY_ERROR"
	KindForbidden             Kind = "FORBIDDEN"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindInternal              Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same command with fresh state.
func (e *Error) Retryable() bool { return e.Kind == KindBusy }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

func InvalidTransition(format string, args ...any) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func InvalidRoomTransition(format string, args ...any) *Error {
	return newf(KindInvalidRoomTransition, format, args...)
}

func NotAssigned(format string, args ...any) *Error { return newf(KindNotAssigned, format, args...) }

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func InsufficientStock(format string, args ...any) *Error {
	return newf(KindInsufficientStock, format, args...)
}

func Busy(format string, args ...any) *Error { return newf(KindBusy, format, args...) }

func Integrity(format string, args ...any) *Error { return newf(KindIntegrity, format, args...) }

func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

// Internal wraps an unexpected infrastructure error.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind carried by err, KindBusy for context deadline errors
// and KindInternal for anything else.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindBusy
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
