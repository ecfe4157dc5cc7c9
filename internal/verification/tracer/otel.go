package tracer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "kycflow/pkg/domain-errors"
)

// InstrumentationName is used when no tracer is injected.
const InstrumentationName = "kycflow/verification"

// OTelTracer exports verification client spans through OpenTelemetry.
// Every span is a client span tagged with the backend it talks to, and failed
// spans carry a stable error.type instead of the raw error text.
type OTelTracer struct {
	tracer      trace.Tracer
	peerService string
}

// OTelOption configures the OTelTracer.
type OTelOption func(*OTelTracer)

// WithOTelTracer injects a pre-configured OpenTelemetry tracer.
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = t
	}
}

// WithPeerService names the remote service on every span.
func WithPeerService(name string) OTelOption {
	return func(o *OTelTracer) {
		o.peerService = name
	}
}

// NewOTel creates a tracer backed by the global provider unless one is injected.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{peerService: DefaultPeerService}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(InstrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kvs := toOTelAttributes(attrs)
	if t.peerService != "" {
		kvs = append(kvs, attribute.String(AttrPeerService, t.peerService))
	}
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(kvs...),
	)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End marks failures with an error.type class. The status description is the
// class too: error text may embed response bodies and must not be exported.
func (s *otelSpan) End(err error) {
	if err != nil {
		errType := ErrorType(err)
		s.span.SetAttributes(attribute.String(AttrErrorType, errType))
		s.span.RecordError(err, trace.WithAttributes(attribute.String(AttrErrorType, errType)))
		s.span.SetStatus(codes.Error, errType)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(toOTelAttributes(attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toOTelAttributes(attrs)...))
}

// coded is satisfied by client errors that map onto a domain code.
type coded interface {
	Code() dErrors.Code
}

// ErrorType classifies err for the error.type attribute. Cancellation and
// deadlines are reported apart from backend failures.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return string(dErrors.CodeTimeout)
	}
	var c coded
	if errors.As(err, &c) {
		return string(c.Code())
	}
	return string(dErrors.CodeOf(err))
}

func toOTelAttributes(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			if v == "" {
				continue
			}
			result = append(result, attribute.String(a.Key, v))
		case bool:
			result = append(result, attribute.Bool(a.Key, v))
		case int64:
			result = append(result, attribute.Int64(a.Key, v))
		case int:
			result = append(result, attribute.Int(a.Key, v))
		case float64:
			result = append(result, attribute.Float64(a.Key, v))
		}
	}
	return result
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
