// Package retry provides the bounded retry policy: attempt budget,
// exponential backoff with jitter, and the per-invocation timeout.
package retry

import (
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior for handler failures classified as
// transient. Permanent failures bypass retry entirely.
type Policy struct {
	// MaxAttempts is the maximum number of handler invocations
	// (including the initial one). Default: 3
	MaxAttempts int

	// BaseBackoff is the starting backoff duration. Default: 1 second
	BaseBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 30 seconds
	MaxBackoff time.Duration

	// InvocationTimeout bounds a single handler invocation; a timeout
	// counts as a transient failure. Zero disables the timeout.
	InvocationTimeout time.Duration

	// randFloat overrides the jitter source (for tests).
	randFloat func() float64
}

// DefaultPolicy is the standard retry policy.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseBackoff: 1 * time.Second,
	MaxBackoff:  30 * time.Second,
}

// Option configures a retry policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.MaxAttempts = n
	}
}

// WithBaseBackoff sets the starting backoff duration.
func WithBaseBackoff(d time.Duration) Option {
	return func(p *Policy) {
		p.BaseBackoff = d
	}
}

// WithMaxBackoff caps the backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxBackoff = d
	}
}

// WithInvocationTimeout bounds a single handler invocation.
func WithInvocationTimeout(d time.Duration) Option {
	return func(p *Policy) {
		p.InvocationTimeout = d
	}
}

// NewPolicy creates a policy from DefaultPolicy plus options.
func NewPolicy(opts ...Option) Policy {
	p := DefaultPolicy
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// normalize fills zero fields with defaults.
func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultPolicy.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultPolicy.MaxBackoff
	}
	return p
}

// Normalized returns the policy with defaults applied.
func (p Policy) Normalized() Policy {
	return p.normalize()
}

// Exhausted reports whether the attempt budget is spent.
// attempts is the number of invocations already made.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.normalize().MaxAttempts
}

// Backoff returns the delay before the next attempt:
// base * 2^retry + jitter in [0, base), capped at MaxBackoff.
// retry is zero-based: the first retry waits around one base interval.
func (p Policy) Backoff(retry int) time.Duration {
	np := p.normalize()

	if retry < 0 {
		retry = 0
	}
	// Shift overflow guard: beyond 62 doublings the cap always wins.
	if retry > 62 {
		return np.MaxBackoff
	}

	backoff := np.BaseBackoff << uint(retry)
	if backoff <= 0 || backoff > np.MaxBackoff {
		return np.MaxBackoff
	}

	randFloat := np.randFloat
	if randFloat == nil {
		randFloat = rand.Float64
	}
	jitter := time.Duration(randFloat() * float64(np.BaseBackoff))

	total := backoff + jitter
	if total > np.MaxBackoff {
		return np.MaxBackoff
	}
	return total
}
