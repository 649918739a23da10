// Package database provides local store instantiation
package database

import (
	"database/sql"
	"fmt"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS zones (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		address TEXT,
		center_lat REAL NOT NULL,
		center_lon REAL NOT NULL,
		radius_meters REAL NOT NULL,
		start_hour INTEGER NOT NULL DEFAULT 0,
		start_minute INTEGER NOT NULL DEFAULT 0,
		end_hour INTEGER NOT NULL DEFAULT 0,
		end_minute INTEGER NOT NULL DEFAULT 0,
		superseded_by TEXT,
		created TIMESTAMP NOT NULL,
		changed TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		zone_id TEXT NOT NULL,
		state TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		open_sample TEXT NOT NULL,
		close_sample TEXT,
		punctuality TEXT NOT NULL,
		flagged_for_review INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS queue_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL UNIQUE,
		payload TEXT NOT NULL,
		sync_state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL,
		last_error TEXT,
		opened_at TIMESTAMP NOT NULL,
		enqueued_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		dead_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS committed_records (
		record_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		zone_id TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL,
		outcome TEXT NOT NULL,
		punctuality TEXT NOT NULL,
		flagged_for_review INTEGER NOT NULL DEFAULT 0,
		revision INTEGER NOT NULL,
		committed_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conflict_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL,
		local_revision INTEGER NOT NULL,
		remote_revision INTEGER NOT NULL,
		local_record TEXT NOT NULL,
		remote_record TEXT NOT NULL,
		resolution TEXT NOT NULL,
		resolved_at TIMESTAMP NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_state ON sessions(user_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_state_opened ON sessions(state, opened_at)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_state_retry ON queue_log(sync_state, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_opened ON queue_log(opened_at)`,
	`CREATE INDEX IF NOT EXISTS idx_committed_user_opened ON committed_records(user_id, opened_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conflict_record ON conflict_log(record_id)`,
}

// SchemaCreator handles the creation of the local store schema.
type SchemaCreator struct{}

// NewSchemaCreator creates a new SchemaCreator.
func NewSchemaCreator() *SchemaCreator {
	return &SchemaCreator{}
}

// CreateSchema executes all necessary queries to build the local tables and
// indexes. Every statement is idempotent so startup can always run it.
func (sc *SchemaCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}
