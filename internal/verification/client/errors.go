package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	dErrors "kycflow/pkg/domain-errors"
)

// Kind is the normalized failure taxonomy for verification backend calls.
//
// Callers decide on retries and user messaging from the Kind alone, never from
// raw status codes or error strings.
type Kind string

const (
	// KindAuth is a 401: missing or invalid API key.
	KindAuth Kind = "auth"

	// KindForbidden is a 403: the key lacks permission for the tenant or endpoint.
	KindForbidden Kind = "forbidden"

	// KindRateLimit is a 429.
	KindRateLimit Kind = "rate_limit"

	// KindServer is any 5xx.
	KindServer Kind = "server"

	// KindTransport covers other non-2xx statuses, malformed URLs and bodies
	// that could not be decoded.
	KindTransport Kind = "transport"

	// KindNetwork means no response was received (dial failure, reset, timeout).
	KindNetwork Kind = "network"
)

// APIError wraps a failed verification backend call with its normalized Kind.
type APIError struct {
	Kind       Kind
	Op         string // client operation, e.g. "submit_document"
	StatusCode int    // 0 when no response was received
	Body       string // response body text for non-2xx responses
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindServer, KindRateLimit:
		return true
	}
	return false
}

// Code maps the Kind onto the shared domain error codes.
func (e *APIError) Code() dErrors.Code {
	switch e.Kind {
	case KindAuth:
		return dErrors.CodeUnauthorized
	case KindForbidden:
		return dErrors.CodeForbidden
	case KindRateLimit:
		return dErrors.CodeRateLimited
	case KindServer:
		return dErrors.CodeInternal
	case KindNetwork:
		return dErrors.CodeNetwork
	default:
		return dErrors.CodeTransport
	}
}

// Is lets errors.Is match an APIError against a domain error of the same code.
func (e *APIError) Is(target error) bool {
	var de *dErrors.Error
	if errors.As(target, &de) {
		return de.Code == e.Code()
	}
	return false
}

func newAPIError(kind Kind, op, message string, err error) *APIError {
	return &APIError{Kind: kind, Op: op, Message: message, Err: err}
}

// statusError classifies a non-2xx response.
func statusError(op string, status int, body []byte) *APIError {
	e := &APIError{Op: op, StatusCode: status, Body: string(body)}
	switch {
	case status == 401:
		e.Kind, e.Message = KindAuth, "invalid API key or unauthorized access"
	case status == 403:
		e.Kind, e.Message = KindForbidden, "access forbidden, check API key permissions"
	case status == 429:
		e.Kind, e.Message = KindRateLimit, "rate limit exceeded, try again later"
	case status >= 500:
		e.Kind, e.Message = KindServer, "server error, try again later"
	default:
		e.Kind, e.Message = KindTransport, "unexpected response: "+string(body)
	}
	return e
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}

// shouldRetry reports whether a failed attempt of a method request may be
// repeated. Reads retry on any retryable failure. Submissions create state on
// the backend, so they are repeated only when the backend cannot have acted on
// them: a rate-limit rejection or a connection that was never established.
func shouldRetry(method string, err error) bool {
	if !IsRetryable(err) {
		return false
	}
	if method == http.MethodGet || method == http.MethodHead {
		return true
	}
	switch KindOf(err) {
	case KindRateLimit:
		return true
	case KindNetwork:
		return isDialError(err)
	}
	return false
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// KindOf extracts the Kind from an error, or "" when err is not an APIError.
func KindOf(err error) Kind {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
