package event

import (
	"fmt"
	"sync"
	"time"
)

// Subscription binds an event type to its handler and dispatch policy.
// Exactly one subscription exists per event type; re-registering
// replaces the previous one.
type Subscription struct {
	// Type is the event type this subscription handles.
	Type string

	// Handler processes events of this type.
	Handler Handler

	// Priority is the ordering lane events of this type enter.
	Priority Priority

	// Classify overrides the default failure classification.
	// Nil means Classify (package default).
	Classify Classifier

	// Timeout bounds a single handler invocation.
	// Zero means no per-invocation timeout.
	Timeout time.Duration
}

// Registry maps event types to subscriptions. It is resolved at
// subscribe time; dispatch performs a plain map lookup.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]*Subscription),
	}
}

// Register adds a subscription, replacing any prior handler for the
// same event type.
func (r *Registry) Register(sub *Subscription) error {
	if sub.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if sub.Handler == nil {
		return fmt.Errorf("handler is required for %s", sub.Type)
	}
	if !sub.Priority.Valid() {
		return fmt.Errorf("invalid priority for %s", sub.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.Type] = sub
	return nil
}

// Lookup returns the subscription for an event type.
func (r *Registry) Lookup(eventType string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[eventType]
	return sub, ok
}

// Has reports whether a subscription exists for the event type.
func (r *Registry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[eventType]
	return ok
}

// Types returns all subscribed event types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.subs))
	for t := range r.subs {
		types = append(types, t)
	}
	return types
}
