package domainerrors

import "errors"

// Code represents a workflow error category independent of transport layer.
// These codes describe what went wrong in workflow terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeRateLimited        Code = "rate_limited"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Remote verification service failures.
	CodeTransport    Code = "transport"     // non-2xx, malformed URL or undecodable body
	CodeNetwork      Code = "network"       // no response received
	CodeSessionError Code = "session_error" // operation needs a session that is missing
	CodeInvalidState Code = "invalid_state" // instance destroyed or not initialized
)

// Error wraps workflow or infrastructure failures with a stable code.
// Validation failures carry every field-level violation in Violations.
type Error struct {
	Code       Code
	Message    string
	Violations []string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewValidation creates a validation error listing every violation.
// The message is the first violation so single-line displays stay useful.
func NewValidation(violations []string) error {
	msg := "validation failed"
	if len(violations) > 0 {
		msg = violations[0]
	}
	out := make([]string, len(violations))
	copy(out, violations)
	return &Error{Code: CodeValidation, Message: msg, Violations: out}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Violations: existing.Violations, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first domain error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ViolationsOf returns the violations carried by a validation error, or nil.
func ViolationsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}
