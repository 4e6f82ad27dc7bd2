// Package idempotency deduplicates events by content hash within a
// time-to-live window.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// Record tracks a seen event hash.
type Record struct {
	Hash      string
	FirstSeen time.Time
	ExpiresAt time.Time
}

// Config configures the idempotency store.
type Config struct {
	// TTL is how long a record suppresses duplicates.
	// Default: 5 minutes
	TTL time.Duration

	// SweepInterval is how often expired records are removed in the
	// background. Default: TTL / 2
	SweepInterval time.Duration

	// Now overrides the clock (for tests).
	Now func() time.Time
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	TTL: 5 * time.Minute,
}

// Store is a TTL-bounded content-hash dedup store.
// CheckAndMark is a single atomic check-and-insert; expired records are
// removed lazily on access and by a background sweep.
type Store struct {
	mu      sync.Mutex
	records map[string]Record
	cfg     Config
	stopCh  chan struct{}
	once    sync.Once
}

// NewStore creates an idempotency store and starts its sweep goroutine.
// Call Close to stop the sweep.
func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.TTL / 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		records: make(map[string]Record),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Hash computes the dedup hash for an event type and its canonical
// payload encoding.
func Hash(eventType string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// CheckAndMark returns true if the event is novel, inserting a record
// with the configured TTL. A live record with the same hash returns
// false and is not refreshed: the caller treats the duplicate as a
// no-op success.
func (s *Store) CheckAndMark(evt *event.Event) (bool, error) {
	payload, err := evt.PayloadBytes()
	if err != nil {
		return false, err
	}
	hash := Hash(evt.Type, payload)
	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[hash]; ok {
		if now.Before(rec.ExpiresAt) {
			return false, nil
		}
		// Expired: fall through and replace.
	}

	s.records[hash] = Record{
		Hash:      hash,
		FirstSeen: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	return true, nil
}

// Unmark removes the record for an event, re-admitting its content
// hash. Used when an event marked novel could not be enqueued.
func (s *Store) Unmark(evt *event.Event) {
	payload, err := evt.PayloadBytes()
	if err != nil {
		return
	}
	hash := Hash(evt.Type, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, hash)
}

// Len returns the number of records, live or expired, awaiting sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close stops the background sweep.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}

// sweepLoop periodically removes expired records.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired records.
func (s *Store) sweep() {
	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, hash)
		}
	}
}
