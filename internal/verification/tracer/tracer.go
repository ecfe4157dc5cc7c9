// Package tracer provides a small tracing abstraction for calls to the
// verification backend.
//
// Callers depend on the Tracer interface, not on OpenTelemetry, so tests can run
// with NoopTracer and production wiring can plug in OTelTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span; the returned context carries it to child calls.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanSubmitDocument,
	//       tracer.String(tracer.AttrSession, tracer.HashSessionID(id)),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute stored as int64.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSessionID shortens a session id to a stable, non-reversible tag so spans
// can be correlated without exporting the id itself.
func HashSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(hash[:8])
}

// Span names emitted by the verification client.
const (
	SpanProbe                = "verification.probe"
	SpanGetSession           = "verification.session.get"
	SpanCreateSession        = "verification.session.create"
	SpanSubmitDocument       = "verification.document.submit"
	SpanSubmitFace           = "verification.face.submit"
	SpanFetchResult          = "verification.result.fetch"
	SpanCompleteVerification = "verification.complete"
	SpanListIDTypes          = "verification.id_types.list"
)

// Attribute keys emitted by the verification client.
const (
	AttrSession    = "session.hash"
	AttrStatusCode = "http.status_code"
	AttrAttempt    = "retry.attempt"
	AttrErrorKind  = "error.kind"
	AttrFallback   = "fallback"
	AttrDecision   = "decision"

	AttrErrorType   = "error.type"
	AttrPeerService = "peer.service"
)

// DefaultPeerService is the peer.service value when none is configured.
const DefaultPeerService = "kyc-verification"

// ErrorTypeCanceled is the error.type of spans ended by caller cancellation.
const ErrorTypeCanceled = "canceled"

// Event names emitted by the verification client.
const (
	EventRetry = "retry.scheduled"
)
