// Package queue provides the ordering queue: four priority lanes with
// monotonic per-lane sequence numbers and a strict-priority drain
// policy softened by a starvation guard.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// ErrClosed is returned once the queue is closed and fully drained.
var ErrClosed = errors.New("queue is closed")

// Config configures the ordering queue.
type Config struct {
	// Capacity bounds the total number of queued events across lanes.
	// Enqueue beyond capacity fails with QueueFullError rather than
	// blocking. Default: 1024
	Capacity int

	// BatchSize is the number of events drained per batch.
	// Default: 16
	BatchSize int

	// StarvationGuard is the number of consecutive batches drained
	// from a higher lane, while a lower lane is non-empty, before one
	// batch is drained from the next lower non-empty lane.
	// Default: 4
	StarvationGuard int
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	Capacity:        1024,
	BatchSize:       16,
	StarvationGuard: 4,
}

// Queue is the linearizable ordering queue. Enqueue assigns the
// per-lane sequence under the same lock that inserts the event, so
// within a lane sequence order equals enqueue order equals drain order.
type Queue struct {
	mu     sync.Mutex
	lanes  [event.NumPriorities][]*event.Event
	seqs   [event.NumPriorities]uint64
	size   int
	streak int
	cfg    Config

	notify   chan struct{}
	closedCh chan struct{}
	closed   bool
}

// New creates an ordering queue.
func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig.Capacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.StarvationGuard <= 0 {
		cfg.StarvationGuard = DefaultConfig.StarvationGuard
	}

	return &Queue{
		cfg:      cfg,
		notify:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Enqueue assigns the event its lane sequence and inserts it at the
// lane tail. A full queue fails fast with QueueFullError.
func (q *Queue) Enqueue(evt *event.Event) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.size >= q.cfg.Capacity {
		q.mu.Unlock()
		return &event.QueueFullError{Capacity: q.cfg.Capacity}
	}

	lane := evt.Priority
	q.seqs[lane]++
	evt.Sequence = q.seqs[lane]
	evt.Status = event.StatusPending
	q.lanes[lane] = append(q.lanes[lane], evt)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// NextBatch blocks until a batch is available, then returns it in
// dispatch order. After Close, remaining events are still drained;
// ErrClosed is returned once the queue is empty.
func (q *Queue) NextBatch(ctx context.Context) ([]*event.Event, error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			batch := q.takeBatchLocked()
			q.mu.Unlock()
			return batch, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closedCh:
		case <-q.notify:
		}
	}
}

// takeBatchLocked picks the lane to drain and pops one batch.
// Strict priority, except that after StarvationGuard consecutive
// higher-lane batches while a lower lane waits, one batch comes from
// the next lower non-empty lane.
func (q *Queue) takeBatchLocked() []*event.Event {
	top := -1
	lower := -1
	for i := 0; i < event.NumPriorities; i++ {
		if len(q.lanes[i]) == 0 {
			continue
		}
		if top < 0 {
			top = i
		} else {
			lower = i
			break
		}
	}

	lane := top
	if lower >= 0 {
		if q.streak >= q.cfg.StarvationGuard {
			lane = lower
			q.streak = 0
		} else {
			q.streak++
		}
	} else {
		q.streak = 0
	}

	n := q.cfg.BatchSize
	if n > len(q.lanes[lane]) {
		n = len(q.lanes[lane])
	}

	batch := make([]*event.Event, n)
	copy(batch, q.lanes[lane][:n])
	q.lanes[lane] = q.lanes[lane][n:]
	q.size -= n
	return batch
}

// Len returns the total number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// LaneLen returns the number of queued events in one lane.
func (q *Queue) LaneLen(p event.Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[p])
}

// Close stops intake. Queued events remain drainable via NextBatch.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.closedCh)
}
