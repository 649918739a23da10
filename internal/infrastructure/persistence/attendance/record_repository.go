package attendance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/database"
)

// RecordRepository stores committed attendance records locally: the
// authoritative remote copy flows back through the reconciler and lands here
// for the report projector to read. Read paths never mutate.
type RecordRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewRecordRepository creates a committed-record repository.
func NewRecordRepository(db *sql.DB, logger *logging.ChanneledLogger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// StoreCommitted upserts a committed record with its server revision.
// Idempotent per recordId; a later revision replaces an earlier one.
func (r *RecordRepository) StoreCommitted(rec attendance.Record, committedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO committed_records (record_id, session_id, user_id, zone_id, opened_at, closed_at, outcome, punctuality, flagged_for_review, revision, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			closed_at = excluded.closed_at,
			outcome = excluded.outcome,
			punctuality = excluded.punctuality,
			flagged_for_review = excluded.flagged_for_review,
			revision = excluded.revision,
			committed_at = excluded.committed_at
		WHERE excluded.revision >= committed_records.revision`,
		rec.RecordID, rec.SessionID, rec.UserID, rec.ZoneID, rec.OpenedAt, rec.ClosedAt,
		rec.Outcome, rec.Punctuality, rec.FlaggedForReview, rec.Revision, committedAt)
	if err != nil {
		return fmt.Errorf("failed to store committed record %s: %w", rec.RecordID, err)
	}
	return nil
}

// ListCommitted returns the user's committed records within the range,
// ordered by openedAt ascending. Read-only contract for the report consumer.
func (r *RecordRepository) ListCommitted(userID string, from, to time.Time) ([]*attendance.Record, error) {
	start := time.Now()
	defer func() {
		database.CheckAndLogSlowQuery(r.logger, "SELECT committed_records by user/range", time.Since(start), "reports")
	}()

	rows, err := r.db.Query(`
		SELECT record_id, session_id, user_id, zone_id, opened_at, closed_at, outcome, punctuality, flagged_for_review, revision
		FROM committed_records
		WHERE user_id = ? AND opened_at >= ? AND opened_at < ?
		ORDER BY opened_at ASC`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query committed records: %w", err)
	}
	defer rows.Close()

	var records []*attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var outcome, punctuality string
		if err := rows.Scan(&rec.RecordID, &rec.SessionID, &rec.UserID, &rec.ZoneID,
			&rec.OpenedAt, &rec.ClosedAt, &outcome, &punctuality, &rec.FlaggedForReview, &rec.Revision); err != nil {
			return nil, err
		}
		rec.Outcome = attendance.Outcome(outcome)
		rec.Punctuality = attendance.Punctuality(punctuality)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ConflictRepository appends resolved conflicts for optional manual review.
type ConflictRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewConflictRepository creates a conflict-log repository.
func NewConflictRepository(db *sql.DB, logger *logging.ChanneledLogger) *ConflictRepository {
	return &ConflictRepository{db: db, logger: logger}
}

// Append stores one resolved conflict.
func (r *ConflictRepository) Append(entry attendance.ConflictLogEntry) error {
	local, err := json.Marshal(entry.LocalRecord)
	if err != nil {
		return fmt.Errorf("failed to encode local record: %w", err)
	}
	remote, err := json.Marshal(entry.RemoteRecord)
	if err != nil {
		return fmt.Errorf("failed to encode remote record: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO conflict_log (record_id, local_revision, remote_revision, local_record, remote_record, resolution, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RecordID, entry.LocalRevision, entry.RemoteRevision, string(local), string(remote), entry.Resolution, entry.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to append conflict for %s: %w", entry.RecordID, err)
	}

	r.logger.Sync().Warn("Conflict resolved and logged",
		"recordId", entry.RecordID, "resolution", string(entry.Resolution),
		"localRevision", entry.LocalRevision, "remoteRevision", entry.RemoteRevision)
	return nil
}

// List returns resolved conflicts, newest first.
func (r *ConflictRepository) List(limit int) ([]*attendance.ConflictLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, record_id, local_revision, remote_revision, local_record, remote_record, resolution, resolved_at
		FROM conflict_log ORDER BY resolved_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict log: %w", err)
	}
	defer rows.Close()

	var entries []*attendance.ConflictLogEntry
	for rows.Next() {
		var e attendance.ConflictLogEntry
		var local, remote, resolution string
		if err := rows.Scan(&e.ID, &e.RecordID, &e.LocalRevision, &e.RemoteRevision,
			&local, &remote, &resolution, &e.ResolvedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(local), &e.LocalRecord); err != nil {
			return nil, fmt.Errorf("failed to decode local record for conflict %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(remote), &e.RemoteRecord); err != nil {
			return nil, fmt.Errorf("failed to decode remote record for conflict %d: %w", e.ID, err)
		}
		e.Resolution = attendance.ConflictResolution(resolution)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
