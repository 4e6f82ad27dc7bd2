package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilLoggerIsSafe(t *testing.T) {
	// Every helper must tolerate a nil logger (logging disabled).
	LogPublish(nil, "evt-1", "habit.created", "normal")
	LogDuplicate(nil, "evt-1", "habit.created")
	LogDispatch(nil, "evt-1", "habit.created", 1, 2.5, nil)
	LogDispatch(nil, "evt-1", "habit.created", 1, 2.5, errors.New("boom"))
	LogRetryScheduled(nil, "evt-1", "habit.created", 1, time.Second)
	LogDeadLetter(nil, "evt-1", "habit.created", "boom", 3)
	LogCircuitTransition(nil, "habit.created", "closed", "open")
	LogQueueFull(nil, "habit.created", 1024)
}

func TestLogOutput(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogDeadLetter(logger, "evt-1", "habit.created", "retry budget exhausted", 3)

	out := buf.String()
	assert.Contains(t, out, "event dead-lettered")
	assert.Contains(t, out, "evt-1")
	assert.Contains(t, out, "habit.created")
}

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	var m MetricsRecorder = NoopMetrics{}
	m.RecordProcessed(ctx, "habit.created", time.Second)
	m.RecordFailure(ctx, "habit.created")
	m.RecordRetry(ctx, "habit.created")
	m.RecordDeadLetter(ctx, "habit.created", 1)
	m.RecordDeadLetter(ctx, "habit.created", -1)
	m.RecordCircuitTransition(ctx, "habit.created", "open")

	var s SpanManager = NoopSpanManager{}
	spanCtx, span := s.StartPublishSpan(ctx, "habit.created", "evt-1")
	s.EndSpanWithError(span, nil)
	_, span = s.StartDispatchSpan(spanCtx, "habit.created", "evt-1", 1)
	s.EndSpanWithError(span, errors.New("boom"))
	s.AddSpanEvent(spanCtx, "enqueued")
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(0))
}
