package relay

import (
	"context"
	"sync/atomic"

	"github.com/randalmurphal/relay/pkg/relay/breaker"
)

// counters are the processor's internal atomic counters.
type counters struct {
	processed    atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	deduplicated atomic.Int64
}

// Stats is a point-in-time snapshot of pipeline counters, exported for
// an external observability collector.
type Stats struct {
	// Processed is the number of events handled successfully.
	Processed int64

	// Failed is the number of handler failures (each attempt counts).
	Failed int64

	// Retried is the number of scheduled retries.
	Retried int64

	// DeadLettered is the number of events routed to the dead letter store.
	DeadLettered int64

	// Deduplicated is the number of publishes suppressed as duplicates.
	Deduplicated int64

	// DeadLetterSize is the current dead letter store size.
	DeadLetterSize int

	// QueueDepth is the current number of queued events.
	QueueDepth int

	// CircuitStates maps handler keys to their circuit state.
	CircuitStates map[string]breaker.State
}

// Stats returns a snapshot of the pipeline counters.
func (p *Processor) Stats(ctx context.Context) Stats {
	size, _ := p.deadLetters.Count(ctx)
	return Stats{
		Processed:      p.counters.processed.Load(),
		Failed:         p.counters.failed.Load(),
		Retried:        p.counters.retried.Load(),
		DeadLettered:   p.counters.deadLettered.Load(),
		Deduplicated:   p.counters.deduplicated.Load(),
		DeadLetterSize: size,
		QueueDepth:     p.queue.Len(),
		CircuitStates:  p.breaker.Snapshot(),
	}
}
