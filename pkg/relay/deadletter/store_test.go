package deadletter

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/relay/pkg/relay/event"
)

func mkEntry(id string, eventType string, at time.Time) Entry {
	return Entry{
		EventID:    id,
		EventType:  eventType,
		Payload:    []byte(fmt.Sprintf(`{"id":%q}`, id)),
		Priority:   event.PriorityNormal,
		Reason:     "retry budget exhausted after 3 attempts: boom",
		Attempts:   3,
		EnqueuedAt: at,
	}
}

func collect(t *testing.T, store Store, f Filter) []Entry {
	t.Helper()
	var entries []Entry
	for entry, err := range store.List(context.Background(), f) {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

// storeTest exercises the Store contract against any implementation.
func storeTest(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("record and get", func(t *testing.T) {
		store := newStore(t)

		entry := mkEntry("evt-1", "habit.created", base)
		require.NoError(t, store.Record(ctx, entry))

		got, err := store.Get(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, entry.EventID, got.EventID)
		assert.Equal(t, entry.EventType, got.EventType)
		assert.Equal(t, entry.Payload, got.Payload)
		assert.Equal(t, entry.Reason, got.Reason)
		assert.Equal(t, entry.Attempts, got.Attempts)
		assert.True(t, entry.EnqueuedAt.Equal(got.EnqueuedAt))
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("record same id replaces", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Record(ctx, mkEntry("evt-1", "habit.created", base)))
		updated := mkEntry("evt-1", "habit.created", base.Add(time.Minute))
		updated.Reason = "permanent failure: boom"
		require.NoError(t, store.Record(ctx, updated))

		got, err := store.Get(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, "permanent failure: boom", got.Reason)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("list in enqueue order", func(t *testing.T) {
		store := newStore(t)

		for i := 0; i < 5; i++ {
			entry := mkEntry(fmt.Sprintf("evt-%d", i), "habit.created", base.Add(time.Duration(i)*time.Second))
			require.NoError(t, store.Record(ctx, entry))
		}

		entries := collect(t, store, Filter{})
		require.Len(t, entries, 5)
		for i, entry := range entries {
			assert.Equal(t, fmt.Sprintf("evt-%d", i), entry.EventID)
		}
	})

	t.Run("list filters by type", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Record(ctx, mkEntry("evt-1", "habit.created", base)))
		require.NoError(t, store.Record(ctx, mkEntry("evt-2", "reminder.due", base.Add(time.Second))))
		require.NoError(t, store.Record(ctx, mkEntry("evt-3", "habit.created", base.Add(2*time.Second))))

		entries := collect(t, store, Filter{EventType: "habit.created"})
		require.Len(t, entries, 2)
		assert.Equal(t, "evt-1", entries[0].EventID)
		assert.Equal(t, "evt-3", entries[1].EventID)
	})

	t.Run("list filters by since", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Record(ctx, mkEntry("old", "habit.created", base)))
		require.NoError(t, store.Record(ctx, mkEntry("new", "habit.created", base.Add(time.Hour))))

		entries := collect(t, store, Filter{Since: base.Add(30 * time.Minute)})
		require.Len(t, entries, 1)
		assert.Equal(t, "new", entries[0].EventID)
	})

	t.Run("list honors limit", func(t *testing.T) {
		store := newStore(t)

		for i := 0; i < 5; i++ {
			entry := mkEntry(fmt.Sprintf("evt-%d", i), "habit.created", base.Add(time.Duration(i)*time.Second))
			require.NoError(t, store.Record(ctx, entry))
		}

		entries := collect(t, store, Filter{Limit: 2})
		require.Len(t, entries, 2)
		assert.Equal(t, "evt-0", entries[0].EventID)
		assert.Equal(t, "evt-1", entries[1].EventID)
	})

	t.Run("list is restartable", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Record(ctx, mkEntry("evt-1", "habit.created", base)))

		seq := store.List(ctx, Filter{})
		first := collectSeq(t, seq)
		second := collectSeq(t, seq)
		assert.Equal(t, first, second)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Record(ctx, mkEntry("evt-1", "habit.created", base)))
		require.NoError(t, store.Delete(ctx, "evt-1"))

		_, err := store.Get(ctx, "evt-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "evt-1"), ErrNotFound)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func collectSeq(t *testing.T, seq func(func(Entry, error) bool)) []string {
	t.Helper()
	var ids []string
	for entry, err := range seq {
		require.NoError(t, err)
		ids = append(ids, entry.EventID)
	}
	return ids
}

func TestMemoryStore(t *testing.T) {
	storeTest(t, func(t *testing.T) Store {
		store := NewMemoryStore()
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTest(t, func(t *testing.T) Store {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "deadletters.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletters.db")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, mkEntry("evt-1", "habit.created", base)))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "habit.created", got.EventType)
}

func TestSQLiteStoreClosed(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "deadletters.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	ctx := context.Background()
	assert.Error(t, store.Record(ctx, mkEntry("evt-1", "habit.created", time.Now())))
	_, err = store.Get(ctx, "evt-1")
	assert.Error(t, err)
}

func TestNewEntrySnapshot(t *testing.T) {
	evt := event.New("habit.created", map[string]any{"habit_id": "h-1"},
		event.WithPriority(event.PriorityHigh))
	evt.Attempts = 3

	entry := NewEntry(evt, "retry budget exhausted after 3 attempts: boom")

	assert.Equal(t, evt.ID, entry.EventID)
	assert.Equal(t, "habit.created", entry.EventType)
	assert.JSONEq(t, `{"habit_id":"h-1"}`, string(entry.Payload))
	assert.Equal(t, event.PriorityHigh, entry.Priority)
	assert.Equal(t, 3, entry.Attempts)
	assert.False(t, entry.EnqueuedAt.IsZero())
}
