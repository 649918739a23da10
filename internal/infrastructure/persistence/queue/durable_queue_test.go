package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = false
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)
	return logger
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	require.NoError(t, database.NewSchemaCreator().CreateSchema(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 30 * time.Second,
		MaxInterval:     30 * time.Minute,
		Multiplier:      2.0,
		Jitter:          0, // deterministic delays for assertions
		MaxAttempts:     3,
	}
}

func newTestQueue(t *testing.T) (*DurableQueue, *sql.DB) {
	t.Helper()
	db := openTestDB(t, filepath.Join(t.TempDir(), "queue.db"))
	return NewDurableQueue(db, testPolicy(), newTestLogger(t)), db
}

func queueRecord(id string, openedAt time.Time) attendance.Record {
	return attendance.Record{
		RecordID:    id,
		SessionID:   "sess-" + id,
		UserID:      "user-1",
		ZoneID:      "zone-1",
		OpenedAt:    openedAt,
		ClosedAt:    openedAt.Add(8 * time.Hour),
		Outcome:     attendance.OutcomeConfirmed,
		Punctuality: attendance.PunctualityOnTime,
	}
}

func TestAppendIsIdempotentPerRecordID(t *testing.T) {
	q, _ := newTestQueue(t)
	rec := queueRecord("rec-1", time.Now().UTC())

	first, err := q.Append(rec)
	require.NoError(t, err)

	// Re-appending the same recordId must not create a duplicate.
	second, err := q.Append(rec)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, second.Seq)

	status, err := q.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)
}

func TestDrainableOrdersByOpenedAt(t *testing.T) {
	q, _ := newTestQueue(t)
	now := time.Now().UTC()

	// Enqueue out of chronological order.
	_, err := q.Append(queueRecord("rec-late", now))
	require.NoError(t, err)
	_, err = q.Append(queueRecord("rec-early", now.Add(-2*time.Hour)))
	require.NoError(t, err)
	_, err = q.Append(queueRecord("rec-mid", now.Add(-time.Hour)))
	require.NoError(t, err)

	entries, err := q.Drainable()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "rec-early", entries[0].Record.RecordID)
	assert.Equal(t, "rec-mid", entries[1].Record.RecordID)
	assert.Equal(t, "rec-late", entries[2].Record.RecordID)
}

func TestMarkFailedSchedulesBackoffAndGatesDrain(t *testing.T) {
	q, _ := newTestQueue(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := base
	q.SetClock(func() time.Time { return clock })

	_, err := q.Append(queueRecord("rec-1", base.Add(-time.Hour)))
	require.NoError(t, err)
	require.NoError(t, q.MarkUploading("rec-1"))

	entry, err := q.MarkFailed("rec-1", errors.New("connection refused"))
	require.NoError(t, err)
	assert.Equal(t, attendance.SyncPending, entry.SyncState)
	assert.Equal(t, 1, entry.Attempts)
	assert.WithinDuration(t, base.Add(30*time.Second), entry.NextRetryAt, time.Second)

	// Not yet due.
	entries, err := q.Drainable()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Due once the clock passes the scheduled retry.
	clock = base.Add(31 * time.Second)
	entries, err = q.Drainable()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Second failure doubles the delay.
	require.NoError(t, q.MarkUploading("rec-1"))
	entry, err = q.MarkFailed("rec-1", errors.New("connection refused"))
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.WithinDuration(t, clock.Add(time.Minute), entry.NextRetryAt, time.Second)
}

func TestMarkFailedDeadLettersAtMaxAttempts(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Append(queueRecord("rec-1", time.Now().UTC()))
	require.NoError(t, err)

	var entry *attendance.QueueEntry
	for i := 0; i < 3; i++ {
		require.NoError(t, q.MarkUploading("rec-1"))
		entry, err = q.MarkFailed("rec-1", errors.New("timeout"))
		require.NoError(t, err)
	}

	assert.Equal(t, attendance.SyncDead, entry.SyncState)
	assert.Equal(t, 3, entry.Attempts)
	require.NotNil(t, entry.DeadAt)

	dead, err := q.DeadLetters()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "rec-1", dead[0].Record.RecordID)

	// Dead entries are never drainable.
	entries, err := q.Drainable()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRequeueResetsDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Append(queueRecord("rec-1", time.Now().UTC()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.MarkUploading("rec-1"))
		_, err = q.MarkFailed("rec-1", errors.New("timeout"))
		require.NoError(t, err)
	}

	require.NoError(t, q.Requeue("rec-1"))

	entry, err := q.Entry("rec-1")
	require.NoError(t, err)
	assert.Equal(t, attendance.SyncPending, entry.SyncState)
	assert.Zero(t, entry.Attempts)
	assert.Nil(t, entry.DeadAt)

	// Requeueing a non-dead entry fails.
	assert.ErrorIs(t, q.Requeue("rec-1"), attendance.ErrRecordNotFound)
}

func TestThreeOfTenDueEntriesAreSelected(t *testing.T) {
	q, _ := newTestQueue(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := base
	q.SetClock(func() time.Time { return clock })

	for i := 0; i < 10; i++ {
		_, err := q.Append(queueRecord(fmt.Sprintf("rec-%d", i), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	// Fail seven of them so their retries land in the future.
	for i := 3; i < 10; i++ {
		id := fmt.Sprintf("rec-%d", i)
		require.NoError(t, q.MarkUploading(id))
		_, err := q.MarkFailed(id, errors.New("unreachable"))
		require.NoError(t, err)
	}

	entries, err := q.Drainable()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), entry.Record.RecordID)
	}
}

func TestMarkCommittedRemovesEntry(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Append(queueRecord("rec-1", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, q.MarkUploading("rec-1"))
	require.NoError(t, q.MarkCommitted("rec-1"))

	_, err = q.Entry("rec-1")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)

	// Idempotent.
	require.NoError(t, q.MarkCommitted("rec-1"))
}

func TestRecoverOnStartupResetsUploading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")

	db := openTestDB(t, path)
	q := NewDurableQueue(db, testPolicy(), newTestLogger(t))

	_, err := q.Append(queueRecord("rec-1", time.Now().UTC()))
	require.NoError(t, err)
	_, err = q.Append(queueRecord("rec-2", time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, q.MarkUploading("rec-1"))

	// Simulate a crash: close the handle and reopen the same file.
	require.NoError(t, db.Close())
	db2 := openTestDB(t, path)
	q2 := NewDurableQueue(db2, testPolicy(), newTestLogger(t))

	reset, quarantined, err := q2.RecoverOnStartup()
	require.NoError(t, err)
	assert.Equal(t, 1, reset)
	assert.Zero(t, quarantined)

	entries, err := q2.Drainable()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, attendance.SyncPending, entry.SyncState)
	}
}

func TestRecoverOnStartupQuarantinesCorruptPayloads(t *testing.T) {
	q, db := newTestQueue(t)

	_, err := q.Append(queueRecord("rec-good", time.Now().UTC()))
	require.NoError(t, err)

	// Corrupt a row behind the queue's back.
	now := time.Now().UTC()
	_, err = db.Exec(`
		INSERT INTO queue_log (record_id, payload, sync_state, attempts, next_retry_at, opened_at, enqueued_at, updated_at)
		VALUES ('rec-bad', '{not json', 'pending', 0, ?, ?, ?, ?)`, now, now, now, now)
	require.NoError(t, err)

	reset, quarantined, err := q.RecoverOnStartup()
	require.NoError(t, err)
	assert.Zero(t, reset)
	assert.Equal(t, 1, quarantined)

	// The healthy entry survives; the corrupt one is dead with a corruption
	// marker, not silently dropped.
	entries, err := q.Drainable()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rec-good", entries[0].Record.RecordID)

	var state string
	var lastError sql.NullString
	err = db.QueryRow(`SELECT sync_state, last_error FROM queue_log WHERE record_id = 'rec-bad'`).Scan(&state, &lastError)
	require.NoError(t, err)
	assert.Equal(t, string(attendance.SyncDead), state)
	require.True(t, lastError.Valid)
	assert.Equal(t, attendance.ErrQueueCorruption.Error(), lastError.String)

	status, err := q.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.Dead)
}
