// Package observability provides structured logging, metrics, and
// tracing for the relay pipeline.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogPublish logs a successful publish.
func LogPublish(logger *slog.Logger, eventID, eventType, priority string) {
	if logger == nil {
		return
	}
	logger.Debug("event published",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("priority", priority),
	)
}

// LogDuplicate logs a deduplicated publish (not an error).
func LogDuplicate(logger *slog.Logger, eventID, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("duplicate event suppressed",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
	)
}

// LogDispatch logs a handler invocation result.
func LogDispatch(logger *slog.Logger, eventID, eventType string, attempt int, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("handler failed",
			slog.String("event_id", eventID),
			slog.String("event_type", eventType),
			slog.Int("attempt", attempt),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("handler completed",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Int("attempt", attempt),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRetryScheduled logs a retry re-enqueue.
func LogRetryScheduled(logger *slog.Logger, eventID, eventType string, attempt int, delay time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("retry scheduled",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}

// LogDeadLetter logs a dead-lettered event.
func LogDeadLetter(logger *slog.Logger, eventID, eventType, reason string, attempts int) {
	if logger == nil {
		return
	}
	logger.Error("event dead-lettered",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("reason", reason),
		slog.Int("attempts", attempts),
	)
}

// LogCircuitTransition logs a circuit breaker state change.
func LogCircuitTransition(logger *slog.Logger, key, from, to string) {
	if logger == nil {
		return
	}
	logger.Warn("circuit transition",
		slog.String("handler", key),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogQueueFull logs a rejected publish due to backpressure.
func LogQueueFull(logger *slog.Logger, eventType string, capacity int) {
	if logger == nil {
		return
	}
	logger.Warn("publish rejected: queue full",
		slog.String("event_type", eventType),
		slog.Int("capacity", capacity),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
