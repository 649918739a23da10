// Package attendance provides the local-store repositories backing the
// attendance capture and sync core.
package attendance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/queue"
)

// SessionRepository persists attendance sessions and implements the state
// machine's Store contract. Terminal transitions and their queue append run
// in one SQLite transaction, so a closed session without a queued record
// cannot exist, even across a crash.
type SessionRepository struct {
	db     *sql.DB
	queue  *queue.DurableQueue
	logger *logging.ChanneledLogger
}

// NewSessionRepository creates a session repository bound to the durable queue.
func NewSessionRepository(db *sql.DB, q *queue.DurableQueue, logger *logging.ChanneledLogger) *SessionRepository {
	return &SessionRepository{db: db, queue: q, logger: logger}
}

// OpenSession returns the user's open session, or nil if none.
func (r *SessionRepository) OpenSession(userID string) (*attendance.Session, error) {
	row := r.db.QueryRow(`
		SELECT session_id, user_id, zone_id, state, opened_at, closed_at, open_sample, close_sample, punctuality, flagged_for_review
		FROM sessions WHERE user_id = ? AND state = ?`,
		userID, attendance.SessionOpen)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// SaveOpen upserts an open session row.
func (r *SessionRepository) SaveOpen(s *attendance.Session) error {
	openSample, err := json.Marshal(s.OpenSample)
	if err != nil {
		return fmt.Errorf("failed to encode open sample: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO sessions (session_id, user_id, zone_id, state, opened_at, open_sample, punctuality, flagged_for_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, punctuality = excluded.punctuality`,
		s.SessionID, s.UserID, s.ZoneID, s.State, s.OpenedAt, string(openSample), s.Punctuality, s.FlaggedForReview)
	if err != nil {
		return fmt.Errorf("failed to save open session %s: %w", s.SessionID, err)
	}

	r.logger.Session().Debug("Open session persisted", "sessionId", s.SessionID, "userId", s.UserID, "zoneId", s.ZoneID)
	return nil
}

// Terminate persists the terminal session state and appends its record to the
// durable queue atomically.
func (r *SessionRepository) Terminate(s *attendance.Session, rec attendance.Record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin terminate transaction: %w", err)
	}
	defer tx.Rollback()

	var closeSample any
	if s.CloseSample != nil {
		encoded, err := json.Marshal(s.CloseSample)
		if err != nil {
			return fmt.Errorf("failed to encode close sample: %w", err)
		}
		closeSample = string(encoded)
	}

	res, err := tx.Exec(`
		UPDATE sessions SET state = ?, closed_at = ?, close_sample = ?, flagged_for_review = ?
		WHERE session_id = ? AND state = ?`,
		s.State, s.ClosedAt, closeSample, s.FlaggedForReview, s.SessionID, attendance.SessionOpen)
	if err != nil {
		return fmt.Errorf("failed to terminate session %s: %w", s.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is not open", s.SessionID)
	}

	if err := r.queue.AppendTx(tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit terminate transaction: %w", err)
	}

	r.logger.Session().Info("Session terminated",
		"sessionId", s.SessionID, "userId", s.UserID, "state", string(s.State), "recordId", rec.RecordID)
	return nil
}

// OverdueSessions lists open sessions opened before the cutoff.
func (r *SessionRepository) OverdueSessions(cutoff time.Time) ([]*attendance.Session, error) {
	rows, err := r.db.Query(`
		SELECT session_id, user_id, zone_id, state, opened_at, closed_at, open_sample, close_sample, punctuality, flagged_for_review
		FROM sessions WHERE state = ? AND opened_at < ?`,
		attendance.SessionOpen, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*attendance.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*attendance.Session, error) {
	var s attendance.Session
	var state, openSample, punctuality string
	var closeSample sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(&s.SessionID, &s.UserID, &s.ZoneID, &state, &s.OpenedAt,
		&closedAt, &openSample, &closeSample, &punctuality, &s.FlaggedForReview)
	if err != nil {
		return nil, err
	}

	s.State = attendance.SessionState(state)
	s.Punctuality = attendance.Punctuality(punctuality)
	if closedAt.Valid {
		s.ClosedAt = &closedAt.Time
	}
	if err := json.Unmarshal([]byte(openSample), &s.OpenSample); err != nil {
		return nil, fmt.Errorf("failed to decode open sample for %s: %w", s.SessionID, err)
	}
	if closeSample.Valid {
		var sample attendance.LocationSample
		if err := json.Unmarshal([]byte(closeSample.String), &sample); err != nil {
			return nil, fmt.Errorf("failed to decode close sample for %s: %w", s.SessionID, err)
		}
		s.CloseSample = &sample
	}
	return &s, nil
}
