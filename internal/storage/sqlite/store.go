package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mvail/threadledger/pkg/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("tracked write not found")

// TrackStore persists the lifecycle of object-store writes. Every mutating
// statement is keyed by object_id and guarded by the row's current status,
// so concurrent writers never race on anything but idempotent updates.
type TrackStore struct {
	db     *sql.DB
	dbPath string
}

// Open opens (or creates) the tracking database at basePath/tracking.db.
func Open(basePath string) (*TrackStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(basePath, "tracking.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+ // Wait up to 5s on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=wal_autocheckpoint(1000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &TrackStore{db: db, dbPath: dbPath}, nil
}

func (s *TrackStore) Close() error {
	return s.db.Close()
}

func (s *TrackStore) DBPath() string {
	return s.dbPath
}

// Track registers an object-store write as pending. Idempotent on
// objectID: a retried write that produces the same content identifier
// overwrites the pending row instead of duplicating it. Rows that have
// already left pending are not touched.
func (s *TrackStore) Track(ctx context.Context, objectID, threadID string, index uint64, sender string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_writes (object_id, thread_id, message_index, sender, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)
		 ON CONFLICT(object_id) DO UPDATE SET
		   thread_id = excluded.thread_id,
		   message_index = excluded.message_index,
		   sender = excluded.sender,
		   created_at = excluded.created_at
		 WHERE tracked_writes.status = 'pending'`,
		objectID, threadID, index, sender, now)
	if err != nil {
		return fmt.Errorf("track write %s: %w", objectID, err)
	}
	return nil
}

// Confirm moves a pending write to confirmed. Calling it on a row that
// already left pending is a no-op, not an error.
func (s *TrackStore) Confirm(ctx context.Context, objectID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_writes SET status = 'confirmed', confirmed_at = ?
		 WHERE object_id = ? AND status = 'pending'`,
		now, objectID)
	if err != nil {
		return fmt.Errorf("confirm write %s: %w", objectID, err)
	}
	return nil
}

// MarkOrphaned moves a pending write to orphaned. No-op on any other state.
func (s *TrackStore) MarkOrphaned(ctx context.Context, objectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_writes SET status = 'orphaned'
		 WHERE object_id = ? AND status = 'pending'`,
		objectID)
	if err != nil {
		return fmt.Errorf("mark orphaned %s: %w", objectID, err)
	}
	return nil
}

// MarkUnpinned moves an orphaned write to unpinned. No-op on any other state.
func (s *TrackStore) MarkUnpinned(ctx context.Context, objectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_writes SET status = 'unpinned'
		 WHERE object_id = ? AND status = 'orphaned'`,
		objectID)
	if err != nil {
		return fmt.Errorf("mark unpinned %s: %w", objectID, err)
	}
	return nil
}

// StaleEntries returns all pending writes created at or before now-maxAge,
// oldest first. This is the sweeper's work queue.
func (s *TrackStore) StaleEntries(ctx context.Context, maxAge time.Duration) ([]types.TrackedWrite, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, thread_id, message_index, sender, status, created_at, confirmed_at
		 FROM tracked_writes
		 WHERE status = 'pending' AND created_at <= ?
		 ORDER BY created_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale entries: %w", err)
	}
	defer rows.Close()

	return scanWrites(rows)
}

// OrphanedEntries returns all writes currently in the orphaned state.
func (s *TrackStore) OrphanedEntries(ctx context.Context) ([]types.TrackedWrite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, thread_id, message_index, sender, status, created_at, confirmed_at
		 FROM tracked_writes
		 WHERE status = 'orphaned'
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query orphaned entries: %w", err)
	}
	defer rows.Close()

	return scanWrites(rows)
}

// EntriesForThread returns every tracked write for a thread, oldest first.
func (s *TrackStore) EntriesForThread(ctx context.Context, threadID string) ([]types.TrackedWrite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, thread_id, message_index, sender, status, created_at, confirmed_at
		 FROM tracked_writes
		 WHERE thread_id = ?
		 ORDER BY created_at`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("query thread entries: %w", err)
	}
	defer rows.Close()

	return scanWrites(rows)
}

// Get returns a single tracked write by object identifier.
func (s *TrackStore) Get(ctx context.Context, objectID string) (*types.TrackedWrite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT object_id, thread_id, message_index, sender, status, created_at, confirmed_at
		 FROM tracked_writes WHERE object_id = ?`,
		objectID)

	w, err := scanWrite(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWrite(r rowScanner) (*types.TrackedWrite, error) {
	var w types.TrackedWrite
	var createdAt string
	var confirmedAt sql.NullString

	if err := r.Scan(&w.ObjectID, &w.ThreadID, &w.MessageIndex, &w.Sender, &w.Status, &createdAt, &confirmedAt); err != nil {
		return nil, err
	}

	var parseErr error
	w.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		slog.Warn("failed to parse created_at timestamp", "objectID", w.ObjectID, "value", createdAt, "error", parseErr)
	}
	if confirmedAt.Valid {
		t, parseErr := time.Parse(time.RFC3339, confirmedAt.String)
		if parseErr != nil {
			slog.Warn("failed to parse confirmed_at timestamp", "objectID", w.ObjectID, "value", confirmedAt.String, "error", parseErr)
		} else {
			w.ConfirmedAt = &t
		}
	}

	return &w, nil
}

func scanWrites(rows *sql.Rows) ([]types.TrackedWrite, error) {
	var out []types.TrackedWrite
	for rows.Next() {
		w, err := scanWrite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
