// Package domainerrors carries the stable, machine-readable error kinds that
// services return and transports translate.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them
// into a coded *Error with New or Wrap so handlers never inspect store details.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable kind of a domain error.
type Code string

const (
	CodeUnauthorized        Code = "unauthorized"
	CodeForbidden           Code = "forbidden"
	CodeValidation          Code = "validation_error"
	CodeBadRequest          Code = "bad_request"
	CodeNotFound            Code = "not_found"
	CodeComputation         Code = "computation_error"
	CodeIntegrity           Code = "integrity_error"
	CodeConcurrency         Code = "concurrency_conflict"
	CodeConflict            Code = "conflict"
	CodeInvariantViolation  Code = "invariant_violation"
	CodeInternal            Code = "internal_error"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
)

// Error is a coded domain error. The message is safe to show to callers
// except for CodeInternal, which transports must not echo.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost coded error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, CodeInternal when err carries none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConcurrency, CodeUpstreamUnavailable:
		return true
	default:
		return false
	}
}
