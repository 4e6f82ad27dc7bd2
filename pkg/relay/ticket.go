package relay

import (
	"context"
	"sync"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// Result is the terminal outcome of a published event.
type Result struct {
	// EventID identifies the event.
	EventID string

	// Status is the terminal status (StatusDone or StatusDead).
	Status event.Status

	// Attempts is the number of handler invocations made.
	Attempts int

	// Duplicate is true when the publish was suppressed by the
	// idempotency store. Duplicates resolve as StatusDone with zero
	// attempts: the original event carries the work.
	Duplicate bool

	// Err is the final handler or pipeline error for dead events.
	Err error
}

// Ticket is the future-like handle returned by Publish. It resolves
// exactly once, when the event reaches a terminal state.
type Ticket struct {
	eventID string
	done    chan struct{}
	once    sync.Once
	result  Result
}

func newTicket(eventID string) *Ticket {
	return &Ticket{
		eventID: eventID,
		done:    make(chan struct{}),
	}
}

// resolvedTicket creates a ticket that is already terminal.
func resolvedTicket(res Result) *Ticket {
	t := newTicket(res.EventID)
	t.resolve(res)
	return t
}

// resolve records the terminal result. Later calls are ignored.
func (t *Ticket) resolve(res Result) {
	t.once.Do(func() {
		t.result = res
		close(t.done)
	})
}

// EventID returns the ID of the tracked event.
func (t *Ticket) EventID() string {
	return t.eventID
}

// Done returns a channel closed when the event reaches a terminal state.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result returns the terminal result if available.
func (t *Ticket) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the event reaches a terminal state or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// SyncOutcome is the result of PublishSync.
type SyncOutcome struct {
	// Scheduled is true when PublishSync was called from inside the
	// dispatch context and could not block; the Ticket resolves later.
	Scheduled bool

	// Ticket tracks the event in both modes.
	Ticket *Ticket

	// Result is the terminal result. Valid only when Scheduled is false.
	Result Result
}
