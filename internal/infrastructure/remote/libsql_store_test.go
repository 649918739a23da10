package remote

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LibsqlStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = false
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	store := NewLibsqlStoreWithDB(db, logger)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func remoteRecord(id string) attendance.Record {
	openedAt := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
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

func TestPutAssignsRevisionOne(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Put(context.Background(), remoteRecord("rec-1"), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, res.Status)
	assert.Equal(t, int64(1), res.Revision)
}

func TestPutIsIdempotentForEquivalentRecords(t *testing.T) {
	store := newTestStore(t)
	rec := remoteRecord("rec-1")

	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)

	// Re-delivery of the same physical record commits without a new write.
	res, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, res.Status)
	assert.Equal(t, int64(1), res.Revision)
}

func TestPutReportsConflictWithRemoteCopy(t *testing.T) {
	store := newTestStore(t)
	rec := remoteRecord("rec-1")

	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)

	divergent := rec
	divergent.Outcome = attendance.OutcomeVoided
	res, err := store.Put(context.Background(), divergent, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, int64(1), res.Revision)
	require.NotNil(t, res.Remote)
	assert.Equal(t, attendance.OutcomeConfirmed, res.Remote.Outcome)
}

func TestOverwriteBumpsRevision(t *testing.T) {
	store := newTestStore(t)
	rec := remoteRecord("rec-1")

	_, err := store.Put(context.Background(), rec, 0)
	require.NoError(t, err)

	rec.Outcome = attendance.OutcomeVoided
	revision, err := store.Overwrite(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revision)

	records, err := store.ListForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.OutcomeVoided, records[0].Outcome)
	assert.Equal(t, int64(2), records[0].Revision)
}

func TestPutWrapsDriverErrorsAsNetwork(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = false
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	store := NewLibsqlStoreWithDB(db, logger)
	require.NoError(t, db.Close())

	_, err = store.Put(context.Background(), remoteRecord("rec-1"), 0)
	assert.ErrorIs(t, err, attendance.ErrNetwork)
}
