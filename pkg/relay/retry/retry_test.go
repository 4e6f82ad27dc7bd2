package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// zeroJitter makes Backoff deterministic.
func zeroJitter(p Policy) Policy {
	p.randFloat = func() float64 { return 0 }
	return p
}

func TestBackoffDoubling(t *testing.T) {
	p := zeroJitter(Policy{
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	})

	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 16*time.Second, p.Backoff(4))
}

func TestBackoffCap(t *testing.T) {
	p := zeroJitter(Policy{
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	})

	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(4))  // 16s capped
	assert.Equal(t, 10*time.Second, p.Backoff(20)) // deep retries stay capped
	assert.Equal(t, 10*time.Second, p.Backoff(100))
}

func TestBackoffJitterRange(t *testing.T) {
	p := Policy{
		BaseBackoff: time.Second,
		MaxBackoff:  time.Hour,
	}
	p.randFloat = func() float64 { return 0.5 }

	// base*2^1 + 0.5*base
	assert.Equal(t, 2500*time.Millisecond, p.Backoff(1))

	p.randFloat = func() float64 { return 0.999 }
	got := p.Backoff(0)
	assert.GreaterOrEqual(t, got, time.Second)
	assert.Less(t, got, 2*time.Second)
}

func TestBackoffNegativeRetry(t *testing.T) {
	p := zeroJitter(Policy{BaseBackoff: time.Second, MaxBackoff: 30 * time.Second})
	assert.Equal(t, time.Second, p.Backoff(-1))
}

func TestExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestNormalized(t *testing.T) {
	p := Policy{}.Normalized()

	assert.Equal(t, DefaultPolicy.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultPolicy.BaseBackoff, p.BaseBackoff)
	assert.Equal(t, DefaultPolicy.MaxBackoff, p.MaxBackoff)
	assert.Equal(t, time.Duration(0), p.InvocationTimeout)
}

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(
		WithMaxAttempts(7),
		WithBaseBackoff(100*time.Millisecond),
		WithMaxBackoff(5*time.Second),
		WithInvocationTimeout(2*time.Second),
	)

	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseBackoff)
	assert.Equal(t, 5*time.Second, p.MaxBackoff)
	assert.Equal(t, 2*time.Second, p.InvocationTimeout)
}
