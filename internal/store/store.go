// Package store provides SQLite-backed persistence for the voxkb
// ingestion queue and progress records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store provides access to the voxkb SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		expert_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		task_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		priority INTEGER NOT NULL DEFAULT 0,
		queue_position INTEGER,
		payload TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		enqueued_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress (
		id TEXT PRIMARY KEY,
		expert_id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'queued',
		status TEXT NOT NULL DEFAULT 'pending',
		queue_position INTEGER,
		current_file TEXT,
		current_file_index INTEGER NOT NULL DEFAULT 0,
		total_files INTEGER NOT NULL DEFAULT 0,
		current_batch INTEGER NOT NULL DEFAULT 0,
		total_batches INTEGER NOT NULL DEFAULT 0,
		current_chunk INTEGER NOT NULL DEFAULT 0,
		total_chunks INTEGER NOT NULL DEFAULT 0,
		processed_files INTEGER NOT NULL DEFAULT 0,
		failed_files INTEGER NOT NULL DEFAULT 0,
		progress_percentage REAL NOT NULL DEFAULT 0,
		details TEXT,
		error_message TEXT,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_events (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		expert_id TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_expert_id ON tasks(expert_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_expert
		ON tasks(expert_id) WHERE status IN ('queued', 'processing');
	CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
