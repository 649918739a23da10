package attendance

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/database"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/queue"
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

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	require.NoError(t, database.NewSchemaCreator().CreateSchema(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func testQueue(t *testing.T, db *sql.DB, logger *logging.ChanneledLogger) *queue.DurableQueue {
	t.Helper()
	policy := queue.RetryPolicy{
		InitialInterval: 30 * time.Second,
		MaxInterval:     30 * time.Minute,
		Multiplier:      2.0,
		Jitter:          0,
		MaxAttempts:     3,
	}
	return queue.NewDurableQueue(db, policy, logger)
}

func openSession(userID string, openedAt time.Time) *attendance.Session {
	return &attendance.Session{
		SessionID: "sess-" + userID,
		UserID:    userID,
		ZoneID:    "zone-1",
		State:     attendance.SessionOpen,
		OpenedAt:  openedAt,
		OpenSample: attendance.LocationSample{
			Latitude: 40.0, Longitude: -79.0, AccuracyMeters: 5, CapturedAt: openedAt,
		},
		Punctuality: attendance.PunctualityOnTime,
	}
}

func terminalRecord(s *attendance.Session, closedAt time.Time) attendance.Record {
	return attendance.Record{
		RecordID:    "rec-" + s.SessionID,
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		ZoneID:      s.ZoneID,
		OpenedAt:    s.OpenedAt,
		ClosedAt:    closedAt,
		Outcome:     attendance.OutcomeConfirmed,
		Punctuality: s.Punctuality,
	}
}

func TestTerminateClosesSessionAndQueuesRecordAtomically(t *testing.T) {
	db := openTestDB(t)
	logger := newTestLogger(t)
	q := testQueue(t, db, logger)
	repo := NewSessionRepository(db, q, logger)

	now := time.Now().UTC()
	s := openSession("user-1", now.Add(-8*time.Hour))
	require.NoError(t, repo.SaveOpen(s))

	loaded, err := repo.OpenSession("user-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, s.SessionID, loaded.SessionID)

	s.State = attendance.SessionClosed
	s.ClosedAt = &now
	s.CloseSample = &attendance.LocationSample{
		Latitude: 40.0, Longitude: -79.0, AccuracyMeters: 4, CapturedAt: now,
	}
	rec := terminalRecord(s, now)
	require.NoError(t, repo.Terminate(s, rec))

	// No open session remains and the record is queued pending.
	loaded, err = repo.OpenSession("user-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	entry, err := q.Entry(rec.RecordID)
	require.NoError(t, err)
	assert.Equal(t, attendance.SyncPending, entry.SyncState)
}

func TestTerminateRejectsNonOpenSession(t *testing.T) {
	db := openTestDB(t)
	logger := newTestLogger(t)
	q := testQueue(t, db, logger)
	repo := NewSessionRepository(db, q, logger)

	now := time.Now().UTC()
	s := openSession("user-1", now.Add(-time.Hour))
	require.NoError(t, repo.SaveOpen(s))

	s.State = attendance.SessionClosed
	s.ClosedAt = &now
	rec := terminalRecord(s, now)
	require.NoError(t, repo.Terminate(s, rec))

	// A second terminate of the same session must fail and must not enqueue.
	rec2 := rec
	rec2.RecordID = "rec-duplicate"
	err := repo.Terminate(s, rec2)
	require.Error(t, err)

	_, err = q.Entry("rec-duplicate")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestOverdueSessionsSelectsByCutoff(t *testing.T) {
	db := openTestDB(t)
	logger := newTestLogger(t)
	repo := NewSessionRepository(db, testQueue(t, db, logger), logger)

	now := time.Now().UTC()
	require.NoError(t, repo.SaveOpen(openSession("user-old", now.Add(-20*time.Hour))))
	require.NoError(t, repo.SaveOpen(openSession("user-fresh", now.Add(-time.Hour))))

	overdue, err := repo.OverdueSessions(now.Add(-14 * time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "user-old", overdue[0].UserID)
}

func testZone(id, label string) *attendance.Zone {
	return &attendance.Zone{
		ID:           id,
		Label:        label,
		CenterLat:    40.44,
		CenterLon:    -79.99,
		RadiusMeters: 120,
		StartHour:    9,
		EndHour:      17,
		Created:      time.Now().UTC(),
	}
}

func TestZoneSupersedeKeepsOldGeometryResolvable(t *testing.T) {
	db := openTestDB(t)
	logger := newTestLogger(t)
	repo := NewZoneRepository(db, logger)

	old := testZone("zone-old", "Main office")
	require.NoError(t, repo.Store(old))

	replacement := testZone("zone-new", "Main office")
	replacement.RadiusMeters = 200
	require.NoError(t, repo.Supersede("zone-old", replacement))

	// The old id still resolves, carrying the supersede pointer.
	resolved, err := repo.ZoneByID("zone-old")
	require.NoError(t, err)
	require.NotNil(t, resolved.SupersededBy)
	assert.Equal(t, "zone-new", *resolved.SupersededBy)
	assert.Equal(t, 120.0, resolved.RadiusMeters)

	// Only the replacement is active.
	active, err := repo.ActiveZones()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "zone-new", active[0].ID)

	// Superseding an already-superseded zone fails.
	assert.ErrorIs(t, repo.Supersede("zone-old", testZone("zone-3", "x")), attendance.ErrZoneNotFound)
}

func committedRecord(id string, openedAt time.Time, revision int64) attendance.Record {
	return attendance.Record{
		RecordID:    id,
		SessionID:   "sess-" + id,
		UserID:      "user-1",
		ZoneID:      "zone-1",
		OpenedAt:    openedAt,
		ClosedAt:    openedAt.Add(8 * time.Hour),
		Outcome:     attendance.OutcomeConfirmed,
		Punctuality: attendance.PunctualityOnTime,
		Revision:    revision,
	}
}

func TestStoreCommittedIgnoresStaleRevision(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db, newTestLogger(t))
	now := time.Now().UTC()

	rec := committedRecord("rec-1", now.Add(-9*time.Hour), 2)
	rec.Outcome = attendance.OutcomeVoided
	require.NoError(t, repo.StoreCommitted(rec, now))

	// A stale revision must not overwrite.
	stale := committedRecord("rec-1", now.Add(-9*time.Hour), 1)
	require.NoError(t, repo.StoreCommitted(stale, now))

	records, err := repo.ListCommitted("user-1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].Revision)
	assert.Equal(t, attendance.OutcomeVoided, records[0].Outcome)

	// A newer revision replaces.
	newer := committedRecord("rec-1", now.Add(-9*time.Hour), 3)
	require.NoError(t, repo.StoreCommitted(newer, now))

	records, err = repo.ListCommitted("user-1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].Revision)
	assert.Equal(t, attendance.OutcomeConfirmed, records[0].Outcome)
}

func TestListCommittedFiltersByUserAndRange(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db, newTestLogger(t))
	now := time.Now().UTC()

	require.NoError(t, repo.StoreCommitted(committedRecord("rec-in", now.Add(-10*time.Hour), 1), now))

	outside := committedRecord("rec-out", now.Add(-80*time.Hour), 1)
	require.NoError(t, repo.StoreCommitted(outside, now))

	other := committedRecord("rec-other", now.Add(-10*time.Hour), 1)
	other.UserID = "user-2"
	require.NoError(t, repo.StoreCommitted(other, now))

	records, err := repo.ListCommitted("user-1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-in", records[0].RecordID)
}

func TestConflictLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewConflictRepository(db, newTestLogger(t))
	now := time.Now().UTC()

	local := committedRecord("rec-1", now.Add(-9*time.Hour), 4)
	remote := committedRecord("rec-1", now.Add(-9*time.Hour), 2)
	remote.Outcome = attendance.OutcomeVoided

	require.NoError(t, repo.Append(attendance.ConflictLogEntry{
		RecordID:       "rec-1",
		LocalRevision:  4,
		RemoteRevision: 2,
		LocalRecord:    local,
		RemoteRecord:   remote,
		Resolution:     attendance.ResolutionKeepLocal,
		ResolvedAt:     now,
	}))

	entries, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.ResolutionKeepLocal, entries[0].Resolution)
	assert.Equal(t, attendance.OutcomeVoided, entries[0].RemoteRecord.Outcome)
	assert.Equal(t, int64(4), entries[0].LocalRevision)
}
