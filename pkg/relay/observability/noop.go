package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordProcessed does nothing.
func (NoopMetrics) RecordProcessed(_ context.Context, _ string, _ time.Duration) {}

// RecordFailure does nothing.
func (NoopMetrics) RecordFailure(_ context.Context, _ string) {}

// RecordRetry does nothing.
func (NoopMetrics) RecordRetry(_ context.Context, _ string) {}

// RecordDeadLetter does nothing.
func (NoopMetrics) RecordDeadLetter(_ context.Context, _ string, _ int64) {}

// RecordCircuitTransition does nothing.
func (NoopMetrics) RecordCircuitTransition(_ context.Context, _, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartPublishSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPublishSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDispatchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDispatchSpan(ctx context.Context, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
