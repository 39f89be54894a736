// Package errors provides standardized domain errors with codes for the Narrate server.
//
// Usage:
//
//	// In services - return typed errors
//	if text == "" {
//	    return errors.Validation("segment text is empty")
//	}
//
//	// At call sites - check with errors.Is
//	if errors.Is(err, errors.ErrTransient) {
//	    // safe to retry
//	}
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeTransientIO Code = "TRANSIENT_IO"
	CodeValidation  Code = "VALIDATION"
	CodeNotFound    Code = "NOT_FOUND"
	CodeCanceled    Code = "CANCELED"
	CodeTimedOut    Code = "TIMED_OUT"
	CodeUnsupported Code = "UNSUPPORTED"
	CodeInternal    Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeUnsupported:
		return http.StatusBadRequest
	case CodeTimedOut:
		return http.StatusGatewayTimeout
	case CodeTransientIO:
		return http.StatusBadGateway
	case CodeCanceled:
		// Client closed request; non-standard but widely understood.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional wrapped cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrTransient   = &Error{Code: CodeTransientIO, Message: "transient I/O failure"}
	ErrValidation  = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound    = &Error{Code: CodeNotFound, Message: "not found"}
	ErrCanceled    = &Error{Code: CodeCanceled, Message: "canceled"}
	ErrTimedOut    = &Error{Code: CodeTimedOut, Message: "timed out"}
	ErrUnsupported = &Error{Code: CodeUnsupported, Message: "unsupported"}
	ErrInternal    = &Error{Code: CodeInternal, Message: "internal error"}
)

// Transient creates a transient I/O error. Transient errors are the only
// class the store retry policy will re-attempt.
func Transient(msg string) *Error {
	return &Error{Code: CodeTransientIO, Message: msg}
}

// Transientf creates a transient I/O error with formatted message.
func Transientf(format string, args ...any) *Error {
	return &Error{Code: CodeTransientIO, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error. Validation errors are never retried.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Canceled creates a cancellation error. Cancellation is a normal outcome,
// not a system fault.
func Canceled(msg string) *Error {
	return &Error{Code: CodeCanceled, Message: msg}
}

// TimedOut creates a timeout error, distinct from user cancellation so the
// surfaced message can suggest a retry.
func TimedOut(msg string) *Error {
	return &Error{Code: CodeTimedOut, Message: msg}
}

// Unsupported creates an unsupported-input error.
func Unsupported(msg string) *Error {
	return &Error{Code: CodeUnsupported, Message: msg}
}

// Unsupportedf creates an unsupported-input error with formatted message.
func Unsupportedf(format string, args ...any) *Error {
	return &Error{Code: CodeUnsupported, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// IsRetryable reports whether an error is in the transient class that the
// bounded-retry policy may re-attempt. Context deadline expiry counts as
// transient; explicit cancellation and data/validation errors do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == CodeTransientIO || domainErr.Code == CodeTimedOut
	}
	// Unclassified errors from drivers are treated as connectivity-class.
	return true
}
