package skald

import (
	"errors"
	"fmt"
)

// ErrorKind tags a service-level failure with a stable category.
// The gateway maps kinds to wire-level status codes; nothing below the
// gateway knows about HTTP.
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindUnavailable     ErrorKind = "unavailable"
	KindNotFound        ErrorKind = "not_found"
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindInternal        ErrorKind = "internal"
)

// ErrDuplicateValue is returned by a Store when a unique constraint is violated.
var ErrDuplicateValue = fmt.Errorf("duplicate value for a unique field")

type Error struct {
	Kind    ErrorKind
	Message string

	cause error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	err := &Error{Kind: kind, Message: fmt.Errorf(format, args...).Error()}
	for _, arg := range args {
		if cause, ok := arg.(error); ok {
			err.cause = cause
		}
	}
	return err
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the error kind, defaulting to KindInternal for errors
// that did not originate in a service.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	return KindInternal
}

func ErrNotFound(what string) *Error {
	return NewErrorf(KindNotFound, "%v not found", what)
}

func ErrAuthenticationRequired() *Error {
	return NewError(KindUnauthenticated, "not authenticated")
}

func ErrNotAuthorized() *Error {
	return NewError(KindForbidden, "not authorized")
}
