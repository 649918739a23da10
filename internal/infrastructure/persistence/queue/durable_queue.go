// Package queue implements the local durable queue of attendance records
// awaiting remote confirmation. Every state change is flushed to the SQLite
// log before the call returns, so a crash between append and upload never
// loses a record.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls per-entry upload retries: exponential backoff with
// jitter, capped at MaxInterval, with entries moving to the dead-letter set
// after MaxAttempts instead of retrying forever.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	MaxAttempts     int
}

// Delay computes the wait before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.RandomizationFactor = p.Jitter
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// DurableQueue is the append-only persisted log of queue entries, keyed by
// recordId with a monotonically increasing sequence number. Mutations are
// serialized per recordId so unrelated records never contend.
type DurableQueue struct {
	db     *sql.DB
	policy RetryPolicy
	logger *logging.ChanneledLogger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDurableQueue creates a durable queue over the local store.
func NewDurableQueue(db *sql.DB, policy RetryPolicy, logger *logging.ChanneledLogger) *DurableQueue {
	return &DurableQueue{
		db:     db,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the queue clock. Intended for tests.
func (q *DurableQueue) SetClock(now func() time.Time) { q.now = now }

func (q *DurableQueue) recordLock(recordID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.locks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[recordID] = lock
	}
	return lock
}

// Append enqueues a record as Pending. Re-appending an existing recordId is a
// no-op that returns the existing entry, never a duplicate.
func (q *DurableQueue) Append(rec attendance.Record) (*attendance.QueueEntry, error) {
	lock := q.recordLock(rec.RecordID)
	lock.Lock()
	defer lock.Unlock()

	if err := q.insert(q.db, rec); err != nil {
		return nil, err
	}
	return q.Entry(rec.RecordID)
}

// AppendTx enqueues a record inside a caller-owned transaction. The session
// state machine uses this to make the terminal transition and the queue
// append one atomic write.
func (q *DurableQueue) AppendTx(tx *sql.Tx, rec attendance.Record) error {
	return q.insert(tx, rec)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (q *DurableQueue) insert(ex execer, rec attendance.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.RecordID, err)
	}

	now := q.now()
	_, err = ex.Exec(`
		INSERT INTO queue_log (record_id, payload, sync_state, attempts, next_retry_at, opened_at, enqueued_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING`,
		rec.RecordID, string(payload), attendance.SyncPending, now, rec.OpenedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to append record %s: %w", rec.RecordID, err)
	}

	q.logger.Queue().Debug("Record appended to durable queue", "recordId", rec.RecordID, "userId", rec.UserID)
	return nil
}

// Entry loads a single queue entry by recordId.
func (q *DurableQueue) Entry(recordID string) (*attendance.QueueEntry, error) {
	row := q.db.QueryRow(`
		SELECT seq, record_id, payload, sync_state, attempts, next_retry_at, last_error, enqueued_at, updated_at, dead_at
		FROM queue_log WHERE record_id = ?`, recordID)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrRecordNotFound
	}
	return entry, err
}

// Drainable returns Pending entries whose retry time has come, oldest
// openedAt first so attendance history commits in chronological order.
func (q *DurableQueue) Drainable() ([]*attendance.QueueEntry, error) {
	rows, err := q.db.Query(`
		SELECT seq, record_id, payload, sync_state, attempts, next_retry_at, last_error, enqueued_at, updated_at, dead_at
		FROM queue_log
		WHERE sync_state = ? AND next_retry_at <= ?
		ORDER BY opened_at ASC, seq ASC`,
		attendance.SyncPending, q.now())
	if err != nil {
		return nil, fmt.Errorf("failed to query drainable entries: %w", err)
	}
	defer rows.Close()

	var entries []*attendance.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			q.logger.Queue().Error("Skipping undecodable queue row during drain", "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkUploading transitions an entry to Uploading before the remote put.
func (q *DurableQueue) MarkUploading(recordID string) error {
	lock := q.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	res, err := q.db.Exec(`
		UPDATE queue_log SET sync_state = ?, updated_at = ?
		WHERE record_id = ? AND sync_state = ?`,
		attendance.SyncUploading, q.now(), recordID, attendance.SyncPending)
	if err != nil {
		return fmt.Errorf("failed to mark %s uploading: %w", recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

// MarkCommitted removes an entry from the queue after the remote store
// acknowledged that exact recordId. Idempotent: a second commit of the same
// record is a no-op.
func (q *DurableQueue) MarkCommitted(recordID string) error {
	lock := q.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	_, err := q.db.Exec(`DELETE FROM queue_log WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", recordID, err)
	}

	q.logger.Queue().Debug("Record committed and removed from queue", "recordId", recordID)
	return nil
}

// MarkFailed records a transient upload failure: attempts is incremented and
// the next retry scheduled with exponential backoff. Once attempts reach the
// policy maximum the entry moves to the dead-letter set and is surfaced
// rather than retried forever. The updated entry is returned.
func (q *DurableQueue) MarkFailed(recordID string, cause error) (*attendance.QueueEntry, error) {
	lock := q.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := q.Entry(recordID)
	if err != nil {
		return nil, err
	}

	now := q.now()
	attempts := entry.Attempts + 1
	lastError := cause.Error()

	if attempts >= q.policy.MaxAttempts {
		_, err = q.db.Exec(`
			UPDATE queue_log SET sync_state = ?, attempts = ?, last_error = ?, updated_at = ?, dead_at = ?
			WHERE record_id = ?`,
			attendance.SyncDead, attempts, lastError, now, now, recordID)
		if err != nil {
			return nil, fmt.Errorf("failed to dead-letter %s: %w", recordID, err)
		}
		q.logger.Queue().Warn("Record moved to dead-letter set",
			"recordId", recordID, "attempts", attempts, "lastError", lastError)
		return q.Entry(recordID)
	}

	nextRetryAt := now.Add(q.policy.Delay(attempts))
	_, err = q.db.Exec(`
		UPDATE queue_log SET sync_state = ?, attempts = ?, next_retry_at = ?, last_error = ?, updated_at = ?
		WHERE record_id = ?`,
		attendance.SyncPending, attempts, nextRetryAt, lastError, now, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark %s failed: %w", recordID, err)
	}

	q.logger.Queue().Debug("Record upload failed, retry scheduled",
		"recordId", recordID, "attempts", attempts, "nextRetryAt", nextRetryAt, "lastError", lastError)
	return q.Entry(recordID)
}

// Status summarizes queue health.
func (q *DurableQueue) Status() (*attendance.QueueStatus, error) {
	rows, err := q.db.Query(`SELECT sync_state, COUNT(*) FROM queue_log GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue status: %w", err)
	}
	defer rows.Close()

	status := &attendance.QueueStatus{}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		switch attendance.SyncState(state) {
		case attendance.SyncPending:
			status.Pending = count
		case attendance.SyncUploading:
			status.Uploading = count
		case attendance.SyncDead:
			status.Dead = count
		}
	}
	return status, rows.Err()
}

// DeadLetters lists entries requiring manual resolution.
func (q *DurableQueue) DeadLetters() ([]*attendance.QueueEntry, error) {
	rows, err := q.db.Query(`
		SELECT seq, record_id, payload, sync_state, attempts, next_retry_at, last_error, enqueued_at, updated_at, dead_at
		FROM queue_log WHERE sync_state = ? ORDER BY dead_at ASC`,
		attendance.SyncDead)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*attendance.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			// A corrupt dead letter still deserves a listing; report the
			// raw id with the decode error attached.
			q.logger.Queue().Error("Undecodable dead-letter row", "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Requeue moves a dead-letter entry back to Pending with a fresh retry
// budget. Admin action after the underlying failure was addressed.
func (q *DurableQueue) Requeue(recordID string) error {
	lock := q.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	res, err := q.db.Exec(`
		UPDATE queue_log SET sync_state = ?, attempts = 0, next_retry_at = ?, last_error = NULL, updated_at = ?, dead_at = NULL
		WHERE record_id = ? AND sync_state = ?`,
		attendance.SyncPending, q.now(), q.now(), recordID, attendance.SyncDead)
	if err != nil {
		return fmt.Errorf("failed to requeue %s: %w", recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrRecordNotFound
	}

	q.logger.Queue().Info("Dead-letter record requeued", "recordId", recordID)
	return nil
}

// RecoverOnStartup rebuilds a consistent queue from the durable log after a
// restart: Uploading is not a safe resting state, so any entry left there is
// reset to Pending for re-delivery (the recordId keeps re-delivery
// idempotent), and rows whose payload no longer decodes are quarantined to
// the dead-letter set without failing the rest of the queue.
func (q *DurableQueue) RecoverOnStartup() (reset, quarantined int, err error) {
	now := q.now()

	res, err := q.db.Exec(`
		UPDATE queue_log SET sync_state = ?, next_retry_at = ?, updated_at = ?
		WHERE sync_state = ?`,
		attendance.SyncPending, now, now, attendance.SyncUploading)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reset uploading entries: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		reset = int(n)
		q.logger.Queue().Info("Reset interrupted uploads to pending", "count", reset)
	}

	rows, err := q.db.Query(`SELECT record_id, payload FROM queue_log WHERE sync_state != ?`, attendance.SyncDead)
	if err != nil {
		return reset, 0, fmt.Errorf("failed to scan queue for corruption: %w", err)
	}
	defer rows.Close()

	var corrupt []string
	for rows.Next() {
		var recordID, payload string
		if err := rows.Scan(&recordID, &payload); err != nil {
			return reset, quarantined, err
		}
		var rec attendance.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil || rec.RecordID == "" {
			corrupt = append(corrupt, recordID)
		}
	}
	if err := rows.Err(); err != nil {
		return reset, quarantined, err
	}

	for _, recordID := range corrupt {
		_, err := q.db.Exec(`
			UPDATE queue_log SET sync_state = ?, last_error = ?, updated_at = ?, dead_at = ?
			WHERE record_id = ?`,
			attendance.SyncDead, attendance.ErrQueueCorruption.Error(), now, now, recordID)
		if err != nil {
			return reset, quarantined, fmt.Errorf("failed to quarantine %s: %w", recordID, err)
		}
		quarantined++
		q.logger.Queue().Error("Quarantined unreadable queue entry", "recordId", recordID)
	}
	return reset, quarantined, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*attendance.QueueEntry, error) {
	var entry attendance.QueueEntry
	var payload, state string
	var lastError sql.NullString
	var deadAt sql.NullTime
	var recordID string

	err := row.Scan(&entry.Seq, &recordID, &payload, &state, &entry.Attempts,
		&entry.NextRetryAt, &lastError, &entry.EnqueuedAt, &entry.UpdatedAt, &deadAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &entry.Record); err != nil {
		return nil, fmt.Errorf("%w: %s", attendance.ErrQueueCorruption, recordID)
	}
	entry.SyncState = attendance.SyncState(state)
	if lastError.Valid {
		entry.LastError = &lastError.String
	}
	if deadAt.Valid {
		entry.DeadAt = &deadAt.Time
	}
	return &entry, nil
}
