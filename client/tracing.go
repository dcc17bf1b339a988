package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceAttribute is a name/value pair attached to a span, independent of
// otel's own attribute.KeyValue so callers that don't depend on otel can
// still implement Tracer.
type TraceAttribute struct {
	Key   string
	Value any
}

// Span is the subset of an OpenTelemetry span a Tracer hands back.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// Tracer starts spans. Client and Listener store the configured Tracer
// but start no spans themselves: the dispatcher and the connect/RMA
// operations run untraced.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...TraceAttribute) (context.Context, Span)
}

// otelTracer adapts an OpenTelemetry trace.Tracer to client.Tracer. The
// teacher's client package only declared the Tracer/Span interfaces; this
// is the concrete backend the teacher's go.mod already pulls in.
type otelTracer struct {
	tr trace.Tracer
}

// NewOTelTracer wraps tr as a client.Tracer.
func NewOTelTracer(tr trace.Tracer) Tracer {
	return &otelTracer{tr: tr}
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, attrs ...TraceAttribute) (context.Context, Span) {
	ctx, span := t.tr.Start(ctx, name, trace.WithAttributes(toOtelAttrs(attrs)...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

func (s *otelSpan) AddEvent(name string, attrs ...TraceAttribute) {
	s.span.AddEvent(name, trace.WithAttributes(toOtelAttrs(attrs)...))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func toOtelAttrs(attrs []TraceAttribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case int:
			out = append(out, attribute.Int(a.Key, v))
		case int64:
			out = append(out, attribute.Int64(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		default:
			out = append(out, attribute.String(a.Key, fmt.Sprintf("%v", v)))
		}
	}
	return out
}

func attributesFromFields(fields []logField) []TraceAttribute {
	out := make([]TraceAttribute, 0, len(fields))
	for _, f := range fields {
		out = append(out, TraceAttribute{Key: f.key, Value: f.value})
	}
	return out
}
