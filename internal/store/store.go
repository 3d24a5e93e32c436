// Package store is the sqlite-backed implementation of the spec's
// optional `Store` sink: audit events, long-term memory entries, vector
// rows, and encrypted secrets all persist here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a single sqlite database bring-up exactly as the teacher
// does: WAL mode plus a busy timeout so concurrent writers retry instead
// of immediately failing with SQLITE_BUSY.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the sqlite database at path and runs
// migrations.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   DATETIME NOT NULL,
			event_type  TEXT NOT NULL,
			agent_id    TEXT,
			tool_name   TEXT,
			task_id     TEXT,
			details     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_events(agent_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(event_type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			content     TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			metadata    TEXT,
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory_entries(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_vectors (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			text        TEXT NOT NULL,
			embedding   TEXT NOT NULL,
			metadata    TEXT,
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_agent ON memory_vectors(agent_id)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			description TEXT,
			kind        TEXT NOT NULL,
			filename    TEXT,
			value       BLOB NOT NULL,
			nonce       BLOB NOT NULL,
			global      INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_workflows (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			schedule     TEXT NOT NULL,
			task_tree    TEXT NOT NULL,
			status       TEXT DEFAULT 'active',
			next_run_at  DATETIME,
			last_run_at  DATETIME,
			last_status  TEXT,
			last_error   TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_next_run ON scheduled_workflows(status, next_run_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
