package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// LibsqlStore talks to the remote attendance database over libsql (Turso).
// The revision counter is assigned here, server-side: it starts at 1 and
// increments on every accepted write, and is the only input to
// last-writer-wins resolution.
type LibsqlStore struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewLibsqlStore opens the remote store connection.
func NewLibsqlStore(databaseURL, authToken string, logger *logging.ChanneledLogger) (*LibsqlStore, error) {
	connStr := databaseURL
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", databaseURL, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	return &LibsqlStore{db: db, logger: logger}, nil
}

// NewLibsqlStoreWithDB wraps an existing connection. Used by tests and by
// deployments that point the "remote" at a locally reachable database.
func NewLibsqlStoreWithDB(db *sql.DB, logger *logging.ChanneledLogger) *LibsqlStore {
	return &LibsqlStore{db: db, logger: logger}
}

// EnsureSchema creates the remote records table if missing.
func (s *LibsqlStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_records (
			record_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			revision INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}
	return nil
}

// Put delivers a record under its idempotency key. A fresh recordId inserts
// at revision 1; an identical existing record commits as a no-op; a
// different existing record reports a conflict with the remote copy.
func (s *LibsqlStore) Put(ctx context.Context, rec attendance.Record, expectedRevision int64) (*PutResult, error) {
	payload, err := rec.CanonicalPayload()
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.RecordID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}
	defer tx.Rollback()

	var existingPayload string
	var existingRevision int64
	err = tx.QueryRowContext(ctx,
		`SELECT payload, revision FROM attendance_records WHERE record_id = ?`,
		rec.RecordID).Scan(&existingPayload, &existingRevision)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attendance_records (record_id, payload, revision) VALUES (?, ?, 1)`,
			rec.RecordID, string(payload)); err != nil {
			return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
		}
		return &PutResult{Status: StatusCommitted, Revision: 1}, nil

	case err != nil:
		return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}

	var remote attendance.Record
	if err := json.Unmarshal([]byte(existingPayload), &remote); err != nil {
		return nil, fmt.Errorf("failed to decode remote record %s: %w", rec.RecordID, err)
	}
	remote.Revision = existingRevision

	if rec.EquivalentTo(remote) {
		// Idempotent re-delivery.
		return &PutResult{Status: StatusCommitted, Revision: existingRevision}, nil
	}

	return &PutResult{Status: StatusConflict, Revision: existingRevision, Remote: &remote}, nil
}

// Overwrite writes the record as the resolved conflict winner, bumping the
// server revision.
func (s *LibsqlStore) Overwrite(ctx context.Context, rec attendance.Record) (int64, error) {
	payload, err := rec.CanonicalPayload()
	if err != nil {
		return 0, fmt.Errorf("failed to encode record %s: %w", rec.RecordID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.QueryRowContext(ctx,
		`SELECT revision FROM attendance_records WHERE record_id = ?`, rec.RecordID).Scan(&revision)
	switch {
	case err == sql.ErrNoRows:
		revision = 0
	case err != nil:
		return 0, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}

	newRevision := revision + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (record_id, payload, revision) VALUES (?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET payload = excluded.payload, revision = excluded.revision`,
		rec.RecordID, string(payload), newRevision)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}

	s.logger.Sync().Debug("Remote record overwritten", "recordId", rec.RecordID, "revision", newRevision)
	return newRevision, nil
}

// ListForUser fetches the user's remote records in a range. Used to seed the
// local committed set after a reinstall.
func (s *LibsqlStore) ListForUser(ctx context.Context, userID string) ([]*attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, revision FROM attendance_records`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
	}
	defer rows.Close()

	var records []*attendance.Record
	for rows.Next() {
		var payload string
		var revision int64
		if err := rows.Scan(&payload, &revision); err != nil {
			return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, err)
		}
		var rec attendance.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		if rec.UserID != userID {
			continue
		}
		rec.Revision = revision
		records = append(records, &rec)
	}
	return records, rows.Err()
}
