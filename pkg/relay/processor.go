package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/relay/pkg/relay/breaker"
	"github.com/randalmurphal/relay/pkg/relay/bridge"
	"github.com/randalmurphal/relay/pkg/relay/deadletter"
	"github.com/randalmurphal/relay/pkg/relay/event"
	"github.com/randalmurphal/relay/pkg/relay/idempotency"
	"github.com/randalmurphal/relay/pkg/relay/observability"
	"github.com/randalmurphal/relay/pkg/relay/queue"
)

// ErrClosed is returned by operations on a closed processor.
var ErrClosed = errors.New("processor is closed")

// Processor is the pipeline facade. It composes the idempotency store,
// ordering queue, circuit breaker, retry policy, and dead letter store
// behind Publish, PublishSync, and Subscribe.
type Processor struct {
	cfg         processorConfig
	registry    *event.Registry
	idem        *idempotency.Store
	queue       *queue.Queue
	breaker     *breaker.Breaker
	deadLetters deadletter.Store
	bridge      *bridge.Bridge
	counters    counters

	ticketsMu sync.Mutex
	tickets   map[string]*Ticket

	retriesMu sync.Mutex
	retries   map[string]*pendingRetry
	retryWG   sync.WaitGroup

	dispatch  chan *event.Event
	drainWG   sync.WaitGroup
	workerWG  sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// pendingRetry is a retry waiting out its backoff.
type pendingRetry struct {
	timer *time.Timer
	evt   *event.Event
	cause error
}

// New creates and starts a Processor.
func New(opts ...Option) *Processor {
	cfg := defaultProcessorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.deadLetters == nil {
		cfg.deadLetters = deadletter.NewMemoryStore()
	}
	cfg.retryPolicy = cfg.retryPolicy.Normalized()

	p := &Processor{
		cfg:         cfg,
		registry:    event.NewRegistry(),
		deadLetters: cfg.deadLetters,
		bridge:      bridge.New(),
		tickets:     make(map[string]*Ticket),
		retries:     make(map[string]*pendingRetry),
		dispatch:    make(chan *event.Event),
	}

	p.idem = idempotency.NewStore(idempotency.Config{TTL: cfg.idempotencyTTL})
	p.queue = queue.New(cfg.queueCfg)

	breakerCfg := cfg.breakerCfg
	userTransition := breakerCfg.OnTransition
	breakerCfg.OnTransition = func(key string, from, to breaker.State) {
		observability.LogCircuitTransition(p.cfg.logger, key, from.String(), to.String())
		p.cfg.metrics.RecordCircuitTransition(context.Background(), key, to.String())
		if userTransition != nil {
			userTransition(key, from, to)
		}
	}
	p.breaker = breaker.New(breakerCfg)

	p.drainWG.Add(1)
	go p.drain()

	for i := 0; i < cfg.workers; i++ {
		p.workerWG.Add(1)
		go p.worker()
	}

	return p
}

// Subscribe registers the handler for an event type. Exactly one
// handler exists per type; re-subscribing replaces the prior handler.
func (p *Processor) Subscribe(eventType string, handler event.Handler, opts ...SubscribeOption) error {
	sub := &event.Subscription{
		Type:     eventType,
		Handler:  handler,
		Priority: event.PriorityNormal,
	}
	for _, opt := range opts {
		opt(sub)
	}
	return p.registry.Register(sub)
}

// Publish is the asynchronous entry point. It validates the event,
// consults the idempotency store, enqueues if novel, and returns a
// Ticket that resolves when the event reaches a terminal state.
// Duplicates resolve immediately as success without dispatch.
func (p *Processor) Publish(ctx context.Context, eventType string, payload any, opts ...event.Option) (*Ticket, error) {
	return p.PublishEvent(ctx, event.New(eventType, payload, opts...))
}

// PublishEvent publishes a pre-built event.
func (p *Processor) PublishEvent(ctx context.Context, evt *event.Event) (*Ticket, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	sub, ok := p.registry.Lookup(evt.Type)
	if !ok {
		return nil, &event.ValidationError{Field: "type", Message: "no handler subscribed for " + evt.Type}
	}
	// The subscription decides the lane.
	evt.Priority = sub.Priority

	_, span := p.cfg.spans.StartPublishSpan(ctx, evt.Type, evt.ID)

	if err := evt.Validate(); err != nil {
		p.cfg.spans.EndSpanWithError(span, err)
		return nil, err
	}

	novel, err := p.idem.CheckAndMark(evt)
	if err != nil {
		verr := &event.ValidationError{Field: "payload", Message: err.Error()}
		p.cfg.spans.EndSpanWithError(span, verr)
		return nil, verr
	}
	if !novel {
		p.counters.deduplicated.Add(1)
		observability.LogDuplicate(p.cfg.logger, evt.ID, evt.Type)
		p.cfg.spans.EndSpanWithError(span, nil)
		return resolvedTicket(Result{
			EventID:   evt.ID,
			Status:    event.StatusDone,
			Duplicate: true,
		}), nil
	}

	ticket := newTicket(evt.ID)
	p.ticketsMu.Lock()
	p.tickets[evt.ID] = ticket
	p.ticketsMu.Unlock()

	if err := p.queue.Enqueue(evt); err != nil {
		p.dropTicket(evt.ID)
		p.idem.Unmark(evt)
		p.cfg.spans.EndSpanWithError(span, err)

		var full *event.QueueFullError
		if errors.As(err, &full) {
			observability.LogQueueFull(p.cfg.logger, evt.Type, full.Capacity)
		}
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}

	observability.LogPublish(p.cfg.logger, evt.ID, evt.Type, evt.Priority.String())
	p.cfg.spans.EndSpanWithError(span, nil)
	return ticket, nil
}

// PublishSync provides Publish's behavior to blocking callers. A plain
// caller blocks until the event reaches a terminal state. A caller
// inside the dispatch context (handler code publishing follow-up
// events) cannot block without deadlocking the worker pool, so the
// outcome comes back Scheduled with a live Ticket instead.
func (p *Processor) PublishSync(ctx context.Context, eventType string, payload any, opts ...event.Option) (SyncOutcome, error) {
	ticket, err := p.Publish(ctx, eventType, payload, opts...)
	if err != nil {
		return SyncOutcome{}, err
	}

	res, err := bridge.RunBlocking(ctx, p.bridge, "publish_sync", func(ctx context.Context) (Result, error) {
		return ticket.Wait(ctx)
	})
	if err != nil {
		var reentrant *bridge.ReentrantBlockingError
		if errors.As(err, &reentrant) {
			return SyncOutcome{Scheduled: true, Ticket: ticket}, nil
		}
		return SyncOutcome{Ticket: ticket}, err
	}
	return SyncOutcome{Ticket: ticket, Result: res}, nil
}

// DeadLetters yields dead letter entries matching the filter.
func (p *Processor) DeadLetters(ctx context.Context, f deadletter.Filter) iter.Seq2[deadletter.Entry, error] {
	return p.deadLetters.List(ctx, f)
}

// Requeue reconstructs the event behind a dead letter entry with a
// fresh attempt budget and re-enqueues it through the ordering queue,
// bypassing the idempotency store. The entry is deleted only after the
// re-enqueue succeeds.
func (p *Processor) Requeue(ctx context.Context, eventID string) (*Ticket, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	entry, err := p.deadLetters.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	evt := &event.Event{
		ID:        entry.EventID,
		Type:      entry.EventType,
		Payload:   json.RawMessage(entry.Payload),
		CreatedAt: time.Now(),
		Priority:  entry.Priority,
		Status:    event.StatusPending,
	}

	ticket := newTicket(evt.ID)
	p.ticketsMu.Lock()
	p.tickets[evt.ID] = ticket
	p.ticketsMu.Unlock()

	if err := p.queue.Enqueue(evt); err != nil {
		p.dropTicket(evt.ID)
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}

	if err := p.deadLetters.Delete(ctx, eventID); err != nil && !errors.Is(err, deadletter.ErrNotFound) {
		if p.cfg.logger != nil {
			p.cfg.logger.Warn("requeued entry could not be deleted",
				"event_id", eventID, "error", err.Error())
		}
	}
	p.cfg.metrics.RecordDeadLetter(ctx, entry.EventType, -1)
	return ticket, nil
}

// Purge deletes a dead letter entry without requeueing it.
func (p *Processor) Purge(ctx context.Context, eventID string) error {
	entry, err := p.deadLetters.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if err := p.deadLetters.Delete(ctx, eventID); err != nil {
		return err
	}
	p.cfg.metrics.RecordDeadLetter(ctx, entry.EventType, -1)
	return nil
}

// Close stops intake, waits for queued events and pending work to
// finish, and closes the stores. Retries still waiting out their
// backoff are dead-lettered rather than silently dropped.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		// Cancel retries still in backoff; their events become dead
		// letters with a reason naming the shutdown.
		// Entries whose timer already fired stay in the map so the timer
		// func can finish its re-enqueue before the queue closes.
		p.retriesMu.Lock()
		stopped := make([]*pendingRetry, 0, len(p.retries))
		for id, r := range p.retries {
			if r.timer.Stop() {
				stopped = append(stopped, r)
				delete(p.retries, id)
				p.retryWG.Done()
			}
		}
		p.retriesMu.Unlock()

		ctx := context.Background()
		for _, r := range stopped {
			p.deadLetter(ctx, r.evt, "processor closed before retry", r.cause)
		}

		// Timers that already fired finish their re-enqueue first.
		p.retryWG.Wait()

		// Queue stops intake but drains fully; drain loop exits once
		// empty and releases the workers.
		p.queue.Close()
		p.drainWG.Wait()
		close(p.dispatch)
		p.workerWG.Wait()

		p.idem.Close()
		p.closeErr = p.deadLetters.Close()
	})
	return p.closeErr
}

// drain is the single producer: it pulls priority-ordered batches from
// the queue and hands events to the worker pool in dispatch order.
func (p *Processor) drain() {
	defer p.drainWG.Done()

	ctx := context.Background()
	for {
		batch, err := p.queue.NextBatch(ctx)
		if err != nil {
			return
		}
		for _, evt := range batch {
			evt.Status = event.StatusInFlight
			p.dispatch <- evt
		}
	}
}

// worker consumes dispatched events. Worker contexts carry the bridge
// mark so reentrant blocking from handler code is detected.
func (p *Processor) worker() {
	defer p.workerWG.Done()

	ctx := p.bridge.Mark(context.Background())
	for evt := range p.dispatch {
		p.process(ctx, evt)
	}
}

// process runs one dispatched event through breaker, handler, and the
// retry/dead-letter decision.
func (p *Processor) process(ctx context.Context, evt *event.Event) {
	sub, ok := p.registry.Lookup(evt.Type)
	if !ok {
		p.deadLetter(ctx, evt, "no handler subscribed for "+evt.Type, nil)
		return
	}

	key := evt.Type
	if err := p.breaker.Allow(key); err != nil {
		p.deadLetter(ctx, evt, err.Error(), err)
		return
	}

	evt.Attempts++

	hctx, span := p.cfg.spans.StartDispatchSpan(ctx, evt.Type, evt.ID, evt.Attempts)
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = p.cfg.retryPolicy.InvocationTimeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(hctx, timeout)
	}

	start := time.Now()
	err := sub.Handler.Handle(hctx, evt)
	duration := time.Since(start)
	if cancel != nil {
		cancel()
	}

	p.cfg.spans.EndSpanWithError(span, err)
	observability.LogDispatch(p.cfg.logger, evt.ID, evt.Type, evt.Attempts,
		float64(duration.Milliseconds()), err)

	if err == nil {
		p.breaker.Success(key)
		p.counters.processed.Add(1)
		p.cfg.metrics.RecordProcessed(ctx, evt.Type, duration)
		evt.Status = event.StatusDone
		p.resolve(evt.ID, Result{
			EventID:  evt.ID,
			Status:   event.StatusDone,
			Attempts: evt.Attempts,
		})
		return
	}

	p.breaker.Failure(key)
	p.counters.failed.Add(1)
	p.cfg.metrics.RecordFailure(ctx, evt.Type)

	classify := sub.Classify
	if classify == nil {
		classify = event.Classify
	}

	if classify(err) == event.CategoryPermanent {
		p.deadLetter(ctx, evt, fmt.Sprintf("permanent failure: %v", err), err)
		return
	}
	if p.cfg.retryPolicy.Exhausted(evt.Attempts) {
		p.deadLetter(ctx, evt,
			fmt.Sprintf("retry budget exhausted after %d attempts: %v", evt.Attempts, err), err)
		return
	}
	p.scheduleRetry(ctx, evt, err)
}

// scheduleRetry re-enqueues the event at its original priority after
// the backoff elapses. The event rejoins the lane tail rather than the
// head so retries do not monopolize the lane.
func (p *Processor) scheduleRetry(ctx context.Context, evt *event.Event, cause error) {
	delay := p.cfg.retryPolicy.Backoff(evt.Attempts - 1)

	p.counters.retried.Add(1)
	p.cfg.metrics.RecordRetry(ctx, evt.Type)
	observability.LogRetryScheduled(p.cfg.logger, evt.ID, evt.Type, evt.Attempts, delay)

	p.retriesMu.Lock()
	if p.closed.Load() {
		p.retriesMu.Unlock()
		p.deadLetter(ctx, evt, "processor closed before retry", cause)
		return
	}
	defer p.retriesMu.Unlock()

	p.retryWG.Add(1)
	id := evt.ID
	timer := time.AfterFunc(delay, func() {
		defer p.retryWG.Done()

		p.retriesMu.Lock()
		_, live := p.retries[id]
		delete(p.retries, id)
		p.retriesMu.Unlock()
		if !live {
			// Close already claimed this retry.
			return
		}

		if err := p.queue.Enqueue(evt); err != nil {
			p.deadLetter(context.Background(), evt, "retry re-enqueue failed: "+err.Error(), cause)
		}
	})
	p.retries[id] = &pendingRetry{timer: timer, evt: evt, cause: cause}
}

// deadLetter records a terminal failure and resolves the ticket.
func (p *Processor) deadLetter(ctx context.Context, evt *event.Event, reason string, cause error) {
	evt.Status = event.StatusDead
	entry := deadletter.NewEntry(evt, reason)

	if err := p.deadLetters.Record(ctx, entry); err != nil {
		if p.cfg.logger != nil {
			p.cfg.logger.Error("dead letter store write failed",
				"event_id", evt.ID, "error", err.Error())
		}
	}

	p.counters.deadLettered.Add(1)
	p.cfg.metrics.RecordDeadLetter(ctx, evt.Type, 1)
	observability.LogDeadLetter(p.cfg.logger, evt.ID, evt.Type, reason, evt.Attempts)

	if cause == nil {
		cause = errors.New(reason)
	}
	p.resolve(evt.ID, Result{
		EventID:  evt.ID,
		Status:   event.StatusDead,
		Attempts: evt.Attempts,
		Err:      cause,
	})
}

// resolve completes and forgets the ticket for an event.
func (p *Processor) resolve(eventID string, res Result) {
	p.ticketsMu.Lock()
	ticket := p.tickets[eventID]
	delete(p.tickets, eventID)
	p.ticketsMu.Unlock()

	if ticket != nil {
		ticket.resolve(res)
	}
}

// dropTicket removes a ticket without resolving it.
func (p *Processor) dropTicket(eventID string) {
	p.ticketsMu.Lock()
	delete(p.tickets, eventID)
	p.ticketsMu.Unlock()
}
