package relay

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/relay/pkg/relay/breaker"
	"github.com/randalmurphal/relay/pkg/relay/config"
	"github.com/randalmurphal/relay/pkg/relay/deadletter"
	"github.com/randalmurphal/relay/pkg/relay/event"
	"github.com/randalmurphal/relay/pkg/relay/observability"
	"github.com/randalmurphal/relay/pkg/relay/queue"
	"github.com/randalmurphal/relay/pkg/relay/retry"
)

// processorConfig holds construction-time configuration for a Processor.
type processorConfig struct {
	idempotencyTTL time.Duration
	queueCfg       queue.Config
	breakerCfg     breaker.Config
	retryPolicy    retry.Policy
	workers        int
	deadLetters    deadletter.Store
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
}

// defaultProcessorConfig returns the default configuration.
func defaultProcessorConfig() processorConfig {
	return processorConfig{
		idempotencyTTL: 5 * time.Minute,
		queueCfg:       queue.DefaultConfig,
		breakerCfg:     breaker.DefaultConfig,
		retryPolicy:    retry.DefaultPolicy,
		workers:        4,
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
	}
}

// Option configures a Processor.
type Option func(*processorConfig)

// WithIdempotencyTTL sets the dedup window. Default: 5 minutes
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(c *processorConfig) {
		if ttl > 0 {
			c.idempotencyTTL = ttl
		}
	}
}

// WithQueueCapacity bounds the ordering queue; a full queue rejects
// publishes with QueueFullError. Default: 1024
func WithQueueCapacity(n int) Option {
	return func(c *processorConfig) {
		if n > 0 {
			c.queueCfg.Capacity = n
		}
	}
}

// WithBatchSize sets the drain batch size. Default: 16
func WithBatchSize(n int) Option {
	return func(c *processorConfig) {
		if n > 0 {
			c.queueCfg.BatchSize = n
		}
	}
}

// WithStarvationGuard sets how many consecutive higher-lane batches may
// drain while a lower lane waits. Default: 4
func WithStarvationGuard(k int) Option {
	return func(c *processorConfig) {
		if k > 0 {
			c.queueCfg.StarvationGuard = k
		}
	}
}

// WithWorkers sets the handler worker pool size. Default: 4
func WithWorkers(n int) Option {
	return func(c *processorConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRetryPolicy sets the retry policy for transient handler failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *processorConfig) {
		c.retryPolicy = p.Normalized()
	}
}

// WithBreakerConfig sets the circuit breaker configuration.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(c *processorConfig) {
		c.breakerCfg = cfg
	}
}

// WithDeadLetterStore sets the dead letter store.
// Default: an in-memory store.
func WithDeadLetterStore(store deadletter.Store) Option {
	return func(c *processorConfig) {
		c.deadLetters = store
	}
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *processorConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *processorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the tracing span manager.
// Default: observability.NoopSpanManager
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *processorConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// FromConfig converts a loaded configuration into processor options.
//
// Recognized keys:
//
//	idempotency_ttl, queue_capacity, batch_size, starvation_guard,
//	worker_pool_size,
//	retry: {max_attempts, base_backoff, max_backoff, invocation_timeout},
//	breaker: {failure_threshold, cooldown, trial_budget},
//	deadletter: {path}   ("" or absent means in-memory)
//
// The returned error is non-nil only when the dead letter store cannot
// be opened.
func FromConfig(cfg config.Config) ([]Option, error) {
	opts := []Option{
		WithIdempotencyTTL(cfg.Duration("idempotency_ttl", 5*time.Minute)),
		WithQueueCapacity(cfg.Int("queue_capacity", queue.DefaultConfig.Capacity)),
		WithBatchSize(cfg.Int("batch_size", queue.DefaultConfig.BatchSize)),
		WithStarvationGuard(cfg.Int("starvation_guard", queue.DefaultConfig.StarvationGuard)),
		WithWorkers(cfg.Int("worker_pool_size", 4)),
	}

	retryCfg := cfg.Section("retry")
	opts = append(opts, WithRetryPolicy(retry.NewPolicy(
		retry.WithMaxAttempts(retryCfg.Int("max_attempts", retry.DefaultPolicy.MaxAttempts)),
		retry.WithBaseBackoff(retryCfg.Duration("base_backoff", retry.DefaultPolicy.BaseBackoff)),
		retry.WithMaxBackoff(retryCfg.Duration("max_backoff", retry.DefaultPolicy.MaxBackoff)),
		retry.WithInvocationTimeout(retryCfg.Duration("invocation_timeout", 0)),
	)))

	breakerCfg := cfg.Section("breaker")
	opts = append(opts, WithBreakerConfig(breaker.Config{
		FailureThreshold: breakerCfg.Int("failure_threshold", breaker.DefaultConfig.FailureThreshold),
		Cooldown:         breakerCfg.Duration("cooldown", breaker.DefaultConfig.Cooldown),
		TrialBudget:      breakerCfg.Int("trial_budget", breaker.DefaultConfig.TrialBudget),
	}))

	if path := cfg.Section("deadletter").String("path", ""); path != "" {
		store, err := deadletter.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDeadLetterStore(store))
	}

	return opts, nil
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*event.Subscription)

// WithPriority sets the ordering lane for the event type.
// Default: PriorityNormal
func WithPriority(p event.Priority) SubscribeOption {
	return func(s *event.Subscription) {
		s.Priority = p
	}
}

// WithClassifier overrides the default transient/permanent failure
// classification for this handler.
func WithClassifier(c event.Classifier) SubscribeOption {
	return func(s *event.Subscription) {
		s.Classify = c
	}
}

// WithHandlerTimeout bounds a single handler invocation for this event
// type, overriding the policy-wide invocation timeout. A timeout
// counts as a transient failure.
func WithHandlerTimeout(d time.Duration) SubscribeOption {
	return func(s *event.Subscription) {
		s.Timeout = d
	}
}
