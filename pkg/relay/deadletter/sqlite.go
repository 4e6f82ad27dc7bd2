package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/relay/pkg/relay/event"
)

// SQLiteStore persists dead letters to SQLite so they survive process
// restarts. It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a SQLite dead letter store.
// The path should be a file path (e.g., "./deadletters.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload BLOB,
			priority INTEGER NOT NULL,
			reason TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			enqueued_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_letters_type
		ON dead_letters(event_type)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store. The insert is committed before returning.
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (event_id, event_type, payload, priority, reason, attempts, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			reason = excluded.reason,
			attempts = excluded.attempts,
			enqueued_at = excluded.enqueued_at
	`, entry.EventID, entry.EventType, entry.Payload, int(entry.Priority),
		entry.Reason, entry.Attempts, entry.EnqueuedAt.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// List implements Store. Each iteration runs a fresh query, so the
// sequence is restartable.
func (s *SQLiteStore) List(ctx context.Context, f Filter) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield(Entry{}, fmt.Errorf("store is closed"))
			return
		}
		s.mu.RUnlock()

		query := `
			SELECT event_id, event_type, payload, priority, reason, attempts, enqueued_at
			FROM dead_letters
		`
		var args []any
		where := ""
		if f.EventType != "" {
			where = " WHERE event_type = ?"
			args = append(args, f.EventType)
		}
		if !f.Since.IsZero() {
			if where == "" {
				where = " WHERE enqueued_at >= ?"
			} else {
				where += " AND enqueued_at >= ?"
			}
			args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
		}
		query += where + " ORDER BY enqueued_at, event_id"
		if f.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, f.Limit)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Entry{}, fmt.Errorf("list dead letters: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("iterate dead letters: %w", err))
		}
	}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, eventID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, payload, priority, reason, attempts, enqueued_at
		FROM dead_letters
		WHERE event_id = ?
	`, eventID)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM dead_letters WHERE event_id = ?
	`, eventID)
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var entry Entry
	var priority int
	var enqueuedAt string

	err := row.Scan(&entry.EventID, &entry.EventType, &entry.Payload,
		&priority, &entry.Reason, &entry.Attempts, &enqueuedAt)
	if err == sql.ErrNoRows {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("scan dead letter: %w", err)
	}

	entry.Priority = event.Priority(priority)
	entry.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, enqueuedAt)
	return entry, nil
}
