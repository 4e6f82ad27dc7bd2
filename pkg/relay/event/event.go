// Package event defines the data model shared by the relay pipeline:
// events, priorities, lifecycle states, the handler contract, and the
// subscription registry.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority selects the ordering lane an event is enqueued into.
// Lower values drain first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow

	// NumPriorities is the number of ordering lanes.
	NumPriorities = 4
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the four defined lanes.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// ParsePriority converts a priority name to a Priority.
// Unknown names fall back to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status tracks an event through its lifecycle.
type Status int

const (
	// StatusPending means the event is enqueued but not yet dispatched.
	StatusPending Status = iota

	// StatusInFlight means the event has been dequeued for dispatch.
	StatusInFlight

	// StatusDone is the terminal success state.
	StatusDone

	// StatusDead is the terminal failure state (dead-lettered).
	StatusDead
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusDone:
		return "done"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusDead
}

// Event is a single unit of work flowing through the pipeline.
// The ordering queue owns the event from enqueue until a terminal
// status; the payload itself is never mutated by the pipeline.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Priority  Priority  `json:"priority"`

	// Sequence is the per-lane monotonic position, assigned at enqueue.
	Sequence uint64 `json:"sequence"`

	// Attempts counts handler invocations made so far.
	Attempts int `json:"attempts"`

	Status Status `json:"status"`

	// Cached canonical encoding (computed lazily).
	cachedBytes []byte
}

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithTimestamp sets a specific creation time (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.CreatedAt = t
	}
}

// WithPriority sets the ordering lane (default: PriorityNormal).
func WithPriority(p Priority) Option {
	return func(e *Event) {
		e.Priority = p
	}
}

// New creates an event with the given type and payload.
func New(eventType string, payload any, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
		Priority:  PriorityNormal,
		Status:    StatusPending,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PayloadBytes returns the canonical JSON encoding of the payload.
// The encoding is deterministic (map keys are sorted by the encoder)
// and cached after the first call.
func (e *Event) PayloadBytes() ([]byte, error) {
	if e.cachedBytes != nil {
		return e.cachedBytes, nil
	}
	if raw, ok := e.Payload.(json.RawMessage); ok {
		e.cachedBytes = raw
		return raw, nil
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	e.cachedBytes = b
	return b, nil
}

// Validate checks structural requirements before enqueue.
func (e *Event) Validate() error {
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "event type is required"}
	}
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "event id is required"}
	}
	if !e.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "unknown priority"}
	}
	if _, err := e.PayloadBytes(); err != nil {
		return &ValidationError{Field: "payload", Message: "payload is not encodable: " + err.Error()}
	}
	return nil
}

// Handler processes a single event.
// Handlers must implement their own internal timeouts for long
// operations; once an event is in flight the pipeline does not cancel
// it beyond the configured invocation timeout.
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}
