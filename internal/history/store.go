package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// orphanNote is appended to records left running by a process that died.
const orphanNote = "[scriptdeck] run interrupted: the runner exited before the script finished"

// Options configures Open.
type Options struct {
	Now func() time.Time
}

// Store is a SQLite-backed script and run history store. It is safe for
// concurrent use.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory for %q: %w", path, err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// One writer at a time; finalize calls from concurrent runs queue here
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{db: db, path: path, now: now}
	if err := s.initDB(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initDB(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			run_as_admin INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			script_id INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER,
			exit_code INTEGER,
			output TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'running'
				CHECK (status IN ('running', 'success', 'error', 'cancelled'))
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_script
			ON run_history(script_id, started_at_ms DESC);
	`)
	if err != nil {
		return fmt.Errorf("initialise history schema: %w", err)
	}

	return nil
}

// rowsAffected reads the affected row count, labelling a failure with op.
func rowsAffected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}

	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
