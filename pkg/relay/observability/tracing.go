package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the relay tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("relay")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span covering validation, dedup, and
	// enqueue of one event.
	StartPublishSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for one handler invocation.
	StartDispatchSpan(ctx context.Context, eventType, eventID string, attempt int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPublishSpan starts a span for one publish call.
func (m *otelSpanManager) StartPublishSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relay.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDispatchSpan starts a span for one handler invocation.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventType, eventID string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relay.dispatch",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
			attribute.Int("event.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, recording the error if present.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
