package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordProcessed records a successfully handled event with its
	// handler latency.
	RecordProcessed(ctx context.Context, eventType string, duration time.Duration)

	// RecordFailure records a handler failure.
	RecordFailure(ctx context.Context, eventType string)

	// RecordRetry records a scheduled retry.
	RecordRetry(ctx context.Context, eventType string)

	// RecordDeadLetter records a dead-lettered event and the resulting
	// store size delta (+1 on record, -1 on requeue/purge).
	RecordDeadLetter(ctx context.Context, eventType string, sizeDelta int64)

	// RecordCircuitTransition records a breaker state change.
	RecordCircuitTransition(ctx context.Context, key, state string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	processed      metric.Int64Counter
	failed         metric.Int64Counter
	retried        metric.Int64Counter
	deadLettered   metric.Int64Counter
	deadLetterSize metric.Int64UpDownCounter
	transitions    metric.Int64Counter
	handlerLatency metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("relay")

	processed, err := meter.Int64Counter("relay.events.processed",
		metric.WithDescription("Number of successfully processed events"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("relay.events.failed",
		metric.WithDescription("Number of handler failures"),
	)
	if err != nil {
		return nil, err
	}

	retried, err := meter.Int64Counter("relay.events.retried",
		metric.WithDescription("Number of scheduled retries"),
	)
	if err != nil {
		return nil, err
	}

	deadLettered, err := meter.Int64Counter("relay.events.deadlettered",
		metric.WithDescription("Number of dead-lettered events"),
	)
	if err != nil {
		return nil, err
	}

	deadLetterSize, err := meter.Int64UpDownCounter("relay.deadletter.size",
		metric.WithDescription("Current dead letter store size"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("relay.circuit.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("relay.handler.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		processed:      processed,
		failed:         failed,
		retried:        retried,
		deadLettered:   deadLettered,
		deadLetterSize: deadLetterSize,
		transitions:    transitions,
		handlerLatency: handlerLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordProcessed records a successfully handled event.
func (m *otelMetrics) RecordProcessed(ctx context.Context, eventType string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}
	m.processed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordFailure records a handler failure.
func (m *otelMetrics) RecordFailure(ctx context.Context, eventType string) {
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordRetry records a scheduled retry.
func (m *otelMetrics) RecordRetry(ctx context.Context, eventType string) {
	m.retried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordDeadLetter records a dead-lettered event.
func (m *otelMetrics) RecordDeadLetter(ctx context.Context, eventType string, sizeDelta int64) {
	if sizeDelta > 0 {
		m.deadLettered.Add(ctx, sizeDelta, metric.WithAttributes(
			attribute.String("event_type", eventType),
		))
	}
	m.deadLetterSize.Add(ctx, sizeDelta)
}

// RecordCircuitTransition records a breaker state change.
func (m *otelMetrics) RecordCircuitTransition(ctx context.Context, key, state string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("handler", key),
		attribute.String("state", state),
	))
}
