// Package store provides the durable per-thread conversation store:
// the accumulated message list and the latest workflow checkpoint,
// keyed by the caller-supplied thread identifier.
//
// The backing store is a single-file SQLite database in WAL mode with
// synchronous=NORMAL and a multi-second busy timeout. One writer can
// proceed concurrently with many readers, which matches the workload
// (one writer per request, serialized by thread id; readers dominate
// during classification-context loading).
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Store is the conversation store. A single long-lived connection is
// shared across all workflow tasks; the sqlite3 driver serializes
// statements on it and the busy timeout absorbs writer contention.
type Store struct {
	db    *sql.DB
	locks *threadLocks
}

// busyTimeout is how long a statement waits on a locked database before
// failing.
const busyTimeout = 5 * time.Second

// Open opens (creating if necessary) the store at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	// One shared connection for the process lifetime.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping conversation store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate conversation store: %w", err)
	}

	return &Store{db: db, locks: newThreadLocks()}, nil
}

// runMigrations applies embedded migrations. Mirrors the standard
// embed + iofs flow: the migration source is closed explicitly, the
// database driver is not (closing it would close the shared *sql.DB).
func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health verifies the store is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LockThread acquires the logical per-thread lock serializing requests
// on one conversation. Returns the release function. Requests on
// different thread ids proceed fully in parallel.
func (s *Store) LockThread(threadID string) func() {
	return s.locks.acquire(threadID)
}

// GetCheckpoint reads the latest workflow snapshot for a thread.
// Returns (nil, nil) when the thread has no checkpoint yet.
func (s *Store) GetCheckpoint(ctx context.Context, threadID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ? ORDER BY created_at DESC, checkpoint_id DESC LIMIT 1`,
		threadID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint for thread %s: %w", threadID, err)
	}
	return state, nil
}

// PutCheckpoint atomically replaces the latest snapshot for a thread.
func (s *Store) PutCheckpoint(ctx context.Context, threadID string, state []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("clear old checkpoints for thread %s: %w", threadID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, checkpoint_id, state, created_at) VALUES (?, ?, ?, ?)`,
		threadID, uuid.NewString(), string(state), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert checkpoint for thread %s: %w", threadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint for thread %s: %w", threadID, err)
	}
	return nil
}

// AppendMessages durably appends messages to a thread's log. The
// transaction commit hits the WAL before this returns.
func (s *Store) AppendMessages(ctx context.Context, threadID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range msgs {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			threadID, msg.Role, msg.Content, createdAt); err != nil {
			return fmt.Errorf("append message to thread %s: %w", threadID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages for thread %s: %w", threadID, err)
	}
	return nil
}

// Messages returns a thread's message log in insertion order. limit > 0
// keeps only the tail.
func (s *Store) Messages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	query := `SELECT role, content, created_at FROM messages WHERE thread_id = ? ORDER BY id`
	args := []any{threadID}
	if limit > 0 {
		query = `SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message for thread %s: %w", threadID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListThreads returns every thread id known to the store.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM checkpoints UNION SELECT thread_id FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}

// DeleteThread removes a thread's checkpoint and message rows.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoints for thread %s: %w", threadID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete messages for thread %s: %w", threadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete for thread %s: %w", threadID, err)
	}
	return nil
}

// CleanupOlderThan deletes threads whose most recent activity predates
// the cutoff, returning how many were removed. Failures on individual
// threads are logged and skipped, never fatal.
func (s *Store) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)

	threads, err := s.ListThreads(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, threadID := range threads {
		last, err := s.lastActivity(ctx, threadID)
		if err != nil {
			slog.Warn("Cleanup: skipping thread, could not read activity",
				"thread_id", threadID, "error", err)
			continue
		}
		if !last.Before(cutoff) {
			continue
		}
		if err := s.DeleteThread(ctx, threadID); err != nil {
			slog.Warn("Cleanup: skipping thread, delete failed",
				"thread_id", threadID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// lastActivity is the newer of the thread's latest checkpoint and
// latest message timestamps.
func (s *Store) lastActivity(ctx context.Context, threadID string) (time.Time, error) {
	var cp, msg sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&cp); err != nil {
		return time.Time{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE thread_id = ?`, threadID).Scan(&msg); err != nil {
		return time.Time{}, err
	}

	var last time.Time
	if cp.Valid {
		last = cp.Time
	}
	if msg.Valid && msg.Time.After(last) {
		last = msg.Time
	}
	if last.IsZero() {
		return time.Time{}, fmt.Errorf("thread %s has no recorded activity", threadID)
	}
	return last, nil
}
