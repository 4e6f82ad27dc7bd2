package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider with an in-memory
// exporter so finished spans can be inspected.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Rebind the package tracer to the test provider.
	tracer = otel.Tracer("relay")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		tracer = otel.Tracer("relay")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartPublishSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()
	_, span := m.StartPublishSpan(context.Background(), "habit.created", "evt-1")
	require.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "relay.publish", s.Name)

	var eventType, eventID string
	for _, attr := range s.Attributes {
		switch attr.Key {
		case "event.type":
			eventType = attr.Value.AsString()
		case "event.id":
			eventID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "habit.created", eventType)
	assert.Equal(t, "evt-1", eventID)
}

func TestStartDispatchSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()
	_, span := m.StartDispatchSpan(context.Background(), "habit.created", "evt-1", 2)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "relay.dispatch", s.Name)

	var attempt int64
	for _, attr := range s.Attributes {
		if attr.Key == "event.attempt" {
			attempt = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(2), attempt)
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	t.Run("success sets ok status", func(t *testing.T) {
		exporter.Reset()

		_, span := m.StartPublishSpan(context.Background(), "habit.created", "evt-1")
		m.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("failure records the error", func(t *testing.T) {
		exporter.Reset()

		_, span := m.StartDispatchSpan(context.Background(), "habit.created", "evt-1", 1)
		m.EndSpanWithError(span, errors.New("handler failed"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "handler failed", s.Status.Description)
		require.NotEmpty(t, s.Events, "expected a recorded error event")
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()
	ctx, span := m.StartPublishSpan(context.Background(), "habit.created", "evt-1")
	m.AddSpanEvent(ctx, "enqueued")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "enqueued", spans[0].Events[0].Name)
}
