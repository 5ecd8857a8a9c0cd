// Package errcode defines the error taxonomy shared by the store, the
// lifecycle manager, and the transport layer. Errors carry a stable code so
// callers can branch on kind without string matching.
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeNotFound means the referenced document is absent. Never retried
	// automatically.
	CodeNotFound Code = "not_found"
	// CodeConflict means a transaction lost a race after the engine's retry
	// budget was exhausted. The caller may retry the whole operation.
	CodeConflict Code = "conflict"
	// CodeUnavailable is a transient connectivity or backend failure.
	CodeUnavailable Code = "unavailable"
	// CodeInvalidState marks a lifecycle transition the state machine does
	// not permit. Only produced when strict transitions are enabled.
	CodeInvalidState Code = "invalid_state"
	// CodeInvalidArgument marks malformed caller input.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match on code equality so sentinel-style comparisons work
// across layers that re-wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error, preserving the cause
// for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to the HTTP status the transport layer responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
