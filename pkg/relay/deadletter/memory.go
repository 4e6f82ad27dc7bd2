package deadletter

import (
	"context"
	"iter"
	"sync"
)

// MemoryStore is an in-memory Store. Suitable for testing and
// deployments that can afford to lose dead letters on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string // event IDs in enqueue order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Record implements Store. Recording the same event ID twice replaces
// the entry but keeps its original position.
func (s *MemoryStore) Record(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.EventID]; !ok {
		s.order = append(s.order, entry.EventID)
	}
	s.entries[entry.EventID] = entry
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, f Filter) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.RLock()
		ids := make([]string, len(s.order))
		copy(ids, s.order)
		s.mu.RUnlock()

		yielded := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				yield(Entry{}, ctx.Err())
				return
			}

			s.mu.RLock()
			entry, ok := s.entries[id]
			s.mu.RUnlock()
			if !ok || !f.Matches(entry) {
				continue
			}

			if !yield(entry, nil) {
				return
			}
			yielded++
			if f.Limit > 0 && yielded >= f.Limit {
				return
			}
		}
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, eventID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[eventID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[eventID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, eventID)
	for i, id := range s.order {
		if id == eventID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
