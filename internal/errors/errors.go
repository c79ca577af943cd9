// Package errors provides coded domain errors for the directory watcher.
//
// Usage:
//
//	// At the point of failure - return typed errors
//	if root == "" {
//	    return errors.InvalidPath(errors.ReasonEmpty, "watch root is empty")
//	}
//
//	// At the boundary - check with errors.Is
//	if errors.Is(err, errors.ErrInvalidPath) {
//	    return statusInvalidRoot
//	}
//
//	// Or switch on the Code directly
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    return domainErr.Code.StatusCode()
//	}
package errors

import (
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
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the watcher.
const (
	CodeInvalidPath        Code = "INVALID_PATH"
	CodeRegistrationFailed Code = "REGISTRATION_FAILED"
	CodeSinkUnavailable    Code = "SINK_UNAVAILABLE"
	CodePartialSynthesis   Code = "PARTIAL_SYNTHESIS"
	CodeAllocationFailure  Code = "ALLOCATION_FAILURE"
	CodeSessionState       Code = "SESSION_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION"
	CodeInternal           Code = "INTERNAL"
)

// Path problems carried in the Details of an INVALID_PATH error.
const (
	ReasonEmpty        = "empty"
	ReasonTooLong      = "too_long"
	ReasonNotFound     = "not_found"
	ReasonNotDirectory = "not_directory"
)

// Status codes returned across the start_monitor boundary.
const (
	StatusOK                 = 0
	StatusInvalidRoot        = 1
	StatusSinkUnavailable    = 2
	StatusPathTooLong        = 3
	StatusRegistrationFailed = 4
	StatusFailed             = 5
)

// StatusCode returns the start_monitor status for an error code.
func (c Code) StatusCode() int {
	switch c {
	case CodeInvalidPath:
		return StatusInvalidRoot
	case CodeSinkUnavailable:
		return StatusSinkUnavailable
	case CodeRegistrationFailed:
		return StatusRegistrationFailed
	default:
		return StatusFailed
	}
}

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidPath, CodeValidation:
		return http.StatusBadRequest
	case CodeSessionState:
		return http.StatusConflict
	case CodeSinkUnavailable, CodeRegistrationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
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

// StatusCode returns the start_monitor status for this error.
// A path that is too long gets its own status even though it shares the
// INVALID_PATH code.
func (e *Error) StatusCode() int {
	if e.Code == CodeInvalidPath && e.Details == ReasonTooLong {
		return StatusPathTooLong
	}
	return e.Code.StatusCode()
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrInvalidPath        = &Error{Code: CodeInvalidPath, Message: "invalid path"}
	ErrRegistrationFailed = &Error{Code: CodeRegistrationFailed, Message: "registration failed"}
	ErrSinkUnavailable    = &Error{Code: CodeSinkUnavailable, Message: "sink unavailable"}
	ErrPartialSynthesis   = &Error{Code: CodePartialSynthesis, Message: "partial synthesis"}
	ErrAllocationFailure  = &Error{Code: CodeAllocationFailure, Message: "allocation failure"}
	ErrSessionState       = &Error{Code: CodeSessionState, Message: "invalid session state"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// StatusOf maps any error to a start_monitor status. nil maps to StatusOK.
func StatusOf(err error) int {
	if err == nil {
		return StatusOK
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.StatusCode()
	}
	return StatusFailed
}

// Constructor functions for creating errors with custom messages.

// InvalidPath creates an invalid path error tagged with the given reason.
func InvalidPath(reason, msg string) *Error {
	return &Error{Code: CodeInvalidPath, Message: msg, Details: reason}
}

// InvalidPathf creates an invalid path error with formatted message.
func InvalidPathf(reason, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidPath, Message: fmt.Sprintf(format, args...), Details: reason}
}

// RegistrationFailed wraps an OS-level subscription failure.
func RegistrationFailed(err error, msg string) *Error {
	return &Error{Code: CodeRegistrationFailed, Message: msg, cause: err}
}

// SinkUnavailable creates a sink unavailable error.
func SinkUnavailable(msg string) *Error {
	return &Error{Code: CodeSinkUnavailable, Message: msg}
}

// PartialSynthesis wraps a failure that cut a subtree walk short.
func PartialSynthesis(err error, path string) *Error {
	return &Error{Code: CodePartialSynthesis, Message: "subtree walk incomplete", Details: path, cause: err}
}

// AllocationFailure creates an allocation failure error for a dropped event.
func AllocationFailure(msg string) *Error {
	return &Error{Code: CodeAllocationFailure, Message: msg}
}

// SessionState creates a session state error.
func SessionState(msg string) *Error {
	return &Error{Code: CodeSessionState, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
