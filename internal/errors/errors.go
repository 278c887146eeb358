// Package errors provides coded domain errors for the narration pipeline and its API.
//
// Every failure the pipeline can surface carries one of the codes below, so a caller
// can tell a browser that never came up from a synthesis that never finished:
//
//	_, err := pipeline.Narrate(ctx, req)
//	if errors.Is(err, errors.ErrSynthesisTimeout) {
//	    // the TTS page accepted the text but never signalled completion
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    log.Error("narration failed", "code", domainErr.Code, "cause", domainErr)
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

// Pipeline failure kinds.
const (
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeSessionStartup       Code = "SESSION_STARTUP"
	CodeSynthesisTimeout     Code = "SYNTHESIS_TIMEOUT"
	CodeResponseNotFound     Code = "RESPONSE_NOT_FOUND"
	CodeDecode               Code = "DECODE"
	CodeIO                   Code = "IO"
)

// Service and API codes.
const (
	CodeNotFound    Code = "NOT_FOUND"
	CodeValidation  Code = "VALIDATION"
	CodeConflict    Code = "CONFLICT"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeInternal    Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeValidation, CodeInvalidConfiguration:
		return http.StatusBadRequest
	case CodeSessionStartup, CodeResponseNotFound, CodeDecode:
		return http.StatusBadGateway
	case CodeSynthesisTimeout:
		return http.StatusGatewayTimeout
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
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration, Message: "invalid configuration"}
	ErrSessionStartup       = &Error{Code: CodeSessionStartup, Message: "capture session failed to start"}
	ErrSynthesisTimeout     = &Error{Code: CodeSynthesisTimeout, Message: "synthesis did not complete in time"}
	ErrResponseNotFound     = &Error{Code: CodeResponseNotFound, Message: "synthesis response not found"}
	ErrDecode               = &Error{Code: CodeDecode, Message: "audio payload could not be decoded"}
	ErrIO                   = &Error{Code: CodeIO, Message: "i/o failure"}

	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict   = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// InvalidConfiguration creates an invalid configuration error.
func InvalidConfiguration(msg string) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: msg}
}

// InvalidConfigurationf creates an invalid configuration error with formatted message.
func InvalidConfigurationf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// SessionStartup creates a session startup error wrapping the browser failure.
func SessionStartup(msg string, err error) *Error {
	return &Error{Code: CodeSessionStartup, Message: msg, cause: err}
}

// SynthesisTimeoutf creates a synthesis timeout error with formatted message.
func SynthesisTimeoutf(format string, args ...any) *Error {
	return &Error{Code: CodeSynthesisTimeout, Message: fmt.Sprintf(format, args...)}
}

// ResponseNotFound creates a response not found error.
func ResponseNotFound(msg string) *Error {
	return &Error{Code: CodeResponseNotFound, Message: msg}
}

// Decode creates a decode error wrapping the underlying failure.
func Decode(msg string, err error) *Error {
	return &Error{Code: CodeDecode, Message: msg, cause: err}
}

// IO creates an i/o error wrapping the underlying failure.
func IO(msg string, err error) *Error {
	return &Error{Code: CodeIO, Message: msg, cause: err}
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

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
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
