// Package jobkeepererr defines the tagged error kinds the scheduler
// surfaces to callers (spec §7).
package jobkeepererr

import (
	"errors"
	"fmt"
)

// Kind tags the category of a scheduler error.
type Kind string

const (
	NotFound      Kind = "E_NOT_FOUND"
	Configuration Kind = "E_CONFIGURATION"
	State         Kind = "E_STATE"
	Timeout       Kind = "E_TIMEOUT"
	Store         Kind = "E_STORE"
)

// Error is the scheduler's tagged error type.
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

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is compare by Kind even across distinct *Error values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func new_(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds an E_NOT_FOUND error.
func NotFoundf(format string, args ...interface{}) *Error { return new_(NotFound, format, args...) }

// Configurationf builds an E_CONFIGURATION error.
func Configurationf(format string, args ...interface{}) *Error {
	return new_(Configuration, format, args...)
}

// Statef builds an E_STATE error.
func Statef(format string, args ...interface{}) *Error { return new_(State, format, args...) }

// Timeoutf builds an E_TIMEOUT error.
func Timeoutf(format string, args ...interface{}) *Error { return new_(Timeout, format, args...) }

// Storef builds an E_STORE error wrapping the underlying driver error.
func Storef(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Store, Message: fmt.Sprintf(format, args...), Err: err}
}

// Of returns the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
