// Package deadletter stores events that exhausted their retry budget
// or failed permanently, for later inspection, requeue, or purge.
package deadletter

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// ErrNotFound is returned when no entry exists for an event ID.
var ErrNotFound = errors.New("dead letter entry not found")

// Entry is an immutable snapshot of a dead event. Requeueing creates a
// fresh pipeline event rather than mutating the entry.
type Entry struct {
	// Event snapshot
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Payload   []byte         `json:"payload"`
	Priority  event.Priority `json:"priority"`

	// Failure information
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEntry snapshots a dead event.
func NewEntry(evt *event.Event, reason string) Entry {
	payload, _ := evt.PayloadBytes() // validated at publish
	return Entry{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Payload:    payload,
		Priority:   evt.Priority,
		Reason:     reason,
		Attempts:   evt.Attempts,
		EnqueuedAt: time.Now(),
	}
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	// EventType restricts to one event type.
	EventType string

	// Since restricts to entries enqueued at or after this time.
	Since time.Time

	// Limit caps the number of entries yielded (0 = unlimited).
	Limit int
}

// Matches reports whether an entry passes the filter.
func (f Filter) Matches(e Entry) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.EnqueuedAt.Before(f.Since) {
		return false
	}
	return true
}

// Store persists dead letter entries. Record must be durable before it
// returns; List is a lazy, restartable sequence.
type Store interface {
	// Record appends an entry.
	Record(ctx context.Context, entry Entry) error

	// List yields entries matching the filter in enqueue order.
	// The sequence can be iterated multiple times; each iteration
	// re-reads the store.
	List(ctx context.Context, f Filter) iter.Seq2[Entry, error]

	// Get returns the entry for an event ID.
	Get(ctx context.Context, eventID string) (Entry, error)

	// Delete removes an entry.
	Delete(ctx context.Context, eventID string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
