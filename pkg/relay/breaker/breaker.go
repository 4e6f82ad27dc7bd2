// Package breaker implements a per-handler circuit breaker so one
// failing handler cannot take down unrelated handlers.
package breaker

import (
	"sync"
	"time"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// State is the circuit state for a single handler key.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures breaker behavior.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// trips the circuit. Default: 5
	FailureThreshold int

	// Cooldown is how long an open circuit rejects calls before
	// admitting trial calls. Default: 30 seconds
	Cooldown time.Duration

	// TrialBudget is the number of half-open trial calls; that many
	// consecutive successes close the circuit again. Default: 1
	TrialBudget int

	// Now overrides the clock (for tests).
	Now func() time.Time

	// OnTransition is called after a state change (for logging/metrics).
	OnTransition func(key string, from, to State)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	Cooldown:         30 * time.Second,
	TrialBudget:      1,
}

// target is the per-key state machine. Transitions happen only inside
// Allow/Success/Failure under the breaker lock.
type target struct {
	state          State
	failures       int
	lastTransition time.Time
	trialAdmitted  int
	trialSuccesses int
}

// Breaker tracks circuit state per handler key.
type Breaker struct {
	mu      sync.Mutex
	targets map[string]*target
	cfg     Config
}

// New creates a breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig.Cooldown
	}
	if cfg.TrialBudget <= 0 {
		cfg.TrialBudget = DefaultConfig.TrialBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Breaker{
		targets: make(map[string]*target),
		cfg:     cfg,
	}
}

// Allow reports whether a call for the key may proceed. An open
// circuit returns CircuitOpenError without invoking anything; once the
// cooldown has elapsed the circuit moves to half-open and admits up to
// TrialBudget calls.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.targetLocked(key)
	now := b.cfg.Now()

	switch t.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := now.Sub(t.lastTransition)
		if elapsed < b.cfg.Cooldown {
			return &event.CircuitOpenError{
				Key:        key,
				RetryAfter: b.cfg.Cooldown - elapsed,
			}
		}
		b.transitionLocked(key, t, StateHalfOpen, now)
		t.trialAdmitted = 1
		return nil

	default: // StateHalfOpen
		if t.trialAdmitted >= b.cfg.TrialBudget {
			return &event.CircuitOpenError{Key: key}
		}
		t.trialAdmitted++
		return nil
	}
}

// Success records a successful call for the key.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.targetLocked(key)

	switch t.state {
	case StateClosed:
		t.failures = 0

	case StateHalfOpen:
		t.trialSuccesses++
		if t.trialSuccesses >= b.cfg.TrialBudget {
			b.transitionLocked(key, t, StateClosed, b.cfg.Now())
			t.failures = 0
		}
	}
}

// Failure records a failed call for the key. In the closed state it
// counts toward the threshold; in half-open any failure reopens the
// circuit and restarts the cooldown.
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.targetLocked(key)

	switch t.state {
	case StateClosed:
		t.failures++
		if t.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(key, t, StateOpen, b.cfg.Now())
		}

	case StateHalfOpen:
		b.transitionLocked(key, t, StateOpen, b.cfg.Now())
	}
}

// StateOf returns the current state for a key. Unknown keys are closed.
func (b *Breaker) StateOf(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.targets[key]
	if !ok {
		return StateClosed
	}
	return t.state
}

// Snapshot returns the current state of every tracked key.
func (b *Breaker) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := make(map[string]State, len(b.targets))
	for key, t := range b.targets {
		snap[key] = t.state
	}
	return snap
}

func (b *Breaker) targetLocked(key string) *target {
	t, ok := b.targets[key]
	if !ok {
		t = &target{state: StateClosed}
		b.targets[key] = t
	}
	return t
}

func (b *Breaker) transitionLocked(key string, t *target, to State, now time.Time) {
	from := t.state
	t.state = to
	t.lastTransition = now
	t.trialAdmitted = 0
	t.trialSuccesses = 0

	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(key, from, to)
	}
}
