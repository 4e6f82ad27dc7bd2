package event

import (
	"context"
	"testing"
	"time"
)

func noopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, evt *Event) error { return nil })
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Subscription{
		Type:     "habit.created",
		Handler:  noopHandler(),
		Priority: PriorityHigh,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	sub, ok := r.Lookup("habit.created")
	if !ok {
		t.Fatal("expected subscription")
	}
	if sub.Priority != PriorityHigh {
		t.Errorf("expected PriorityHigh, got %v", sub.Priority)
	}
	if !r.Has("habit.created") {
		t.Error("Has should report the subscription")
	}
	if r.Has("unknown.type") {
		t.Error("Has should not report unknown types")
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()

	first := &Subscription{Type: "habit.created", Handler: noopHandler()}
	second := &Subscription{Type: "habit.created", Handler: noopHandler(), Priority: PriorityLow}

	if err := r.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(second); err != nil {
		t.Fatal(err)
	}

	sub, _ := r.Lookup("habit.created")
	if sub != second {
		t.Error("re-registering should replace the prior subscription")
	}
	if len(r.Types()) != 1 {
		t.Errorf("expected 1 type, got %d", len(r.Types()))
	}
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Subscription{Handler: noopHandler()}); err == nil {
		t.Error("expected error for empty type")
	}
	if err := r.Register(&Subscription{Type: "x"}); err == nil {
		t.Error("expected error for nil handler")
	}
	if err := r.Register(&Subscription{Type: "x", Handler: noopHandler(), Priority: Priority(7)}); err == nil {
		t.Error("expected error for invalid priority")
	}
}
