package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
	"github.com/attendly/attendly-go/internal/infrastructure/remote"
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

type fakeQueue struct {
	mu      sync.Mutex
	entries map[string]*attendance.QueueEntry
	order   []string

	maxAttempts int
}

func newFakeQueue(maxAttempts int) *fakeQueue {
	return &fakeQueue{entries: make(map[string]*attendance.QueueEntry), maxAttempts: maxAttempts}
}

func (q *fakeQueue) add(rec attendance.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[rec.RecordID] = &attendance.QueueEntry{
		Seq:       int64(len(q.order) + 1),
		Record:    rec,
		SyncState: attendance.SyncPending,
	}
	q.order = append(q.order, rec.RecordID)
}

func (q *fakeQueue) Drainable() ([]*attendance.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*attendance.QueueEntry
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok && e.SyncState == attendance.SyncPending && !e.NextRetryAt.After(time.Now()) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkUploading(recordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[recordID]
	if !ok || e.SyncState != attendance.SyncPending {
		return attendance.ErrRecordNotFound
	}
	e.SyncState = attendance.SyncUploading
	return nil
}

func (q *fakeQueue) MarkCommitted(recordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, recordID)
	return nil
}

func (q *fakeQueue) MarkFailed(recordID string, cause error) (*attendance.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[recordID]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	e.Attempts++
	msg := cause.Error()
	e.LastError = &msg
	if e.Attempts >= q.maxAttempts {
		e.SyncState = attendance.SyncDead
	} else {
		e.SyncState = attendance.SyncPending
		e.NextRetryAt = time.Now().Add(time.Hour)
	}
	copied := *e
	return &copied, nil
}

func (q *fakeQueue) state(recordID string) attendance.SyncState {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[recordID]
	if !ok {
		return attendance.SyncCommitted
	}
	return e.SyncState
}

type putResponse struct {
	result *remote.PutResult
	err    error
}

type fakeRemote struct {
	mu         sync.Mutex
	responses  map[string][]putResponse
	puts       []string
	overwrites []string

	overwriteRevision int64
	overwriteErr      error
	putDelay          time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{responses: make(map[string][]putResponse), overwriteRevision: 5}
}

func (f *fakeRemote) respond(recordID string, r *remote.PutResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[recordID] = append(f.responses[recordID], putResponse{r, err})
}

func (f *fakeRemote) Put(ctx context.Context, rec attendance.Record, expectedRevision int64) (*remote.PutResult, error) {
	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", attendance.ErrNetwork, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, rec.RecordID)
	queue := f.responses[rec.RecordID]
	if len(queue) == 0 {
		return &remote.PutResult{Status: remote.StatusCommitted, Revision: 1}, nil
	}
	resp := queue[0]
	f.responses[rec.RecordID] = queue[1:]
	return resp.result, resp.err
}

func (f *fakeRemote) Overwrite(ctx context.Context, rec attendance.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overwrites = append(f.overwrites, rec.RecordID)
	if f.overwriteErr != nil {
		return 0, f.overwriteErr
	}
	return f.overwriteRevision, nil
}

type fakeCommitted struct {
	mu      sync.Mutex
	records map[string]attendance.Record
}

func newFakeCommitted() *fakeCommitted {
	return &fakeCommitted{records: make(map[string]attendance.Record)}
}

func (f *fakeCommitted) StoreCommitted(rec attendance.Record, committedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.RecordID] = rec
	return nil
}

type fakeConflicts struct {
	mu      sync.Mutex
	entries []attendance.ConflictLogEntry
}

func (f *fakeConflicts) Append(entry attendance.ConflictLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func testRecord(id string, closedAt time.Time) attendance.Record {
	return attendance.Record{
		RecordID:    id,
		SessionID:   "sess-" + id,
		UserID:      "user-1",
		ZoneID:      "zone-1",
		OpenedAt:    closedAt.Add(-8 * time.Hour),
		ClosedAt:    closedAt,
		Outcome:     attendance.OutcomeConfirmed,
		Punctuality: attendance.PunctualityOnTime,
	}
}

func newTestReconciler(t *testing.T, q Queue, rs remote.Store, committed CommittedStore, conflicts ConflictLog) *Reconciler {
	t.Helper()
	return NewReconciler(q, rs, committed, conflicts,
		time.Second, performance.NewTracker(nil), newTestLogger(t))
}

func TestDrainCommitsPendingEntries(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	committed := newFakeCommitted()
	conflicts := &fakeConflicts{}
	r := newTestReconciler(t, q, rs, committed, conflicts)

	now := time.Now().UTC()
	q.add(testRecord("rec-1", now))
	q.add(testRecord("rec-2", now.Add(time.Minute)))

	result, err := r.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Committed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, attendance.SyncCommitted, q.state("rec-1"))
	assert.Equal(t, attendance.SyncCommitted, q.state("rec-2"))
	assert.Equal(t, int64(1), committed.records["rec-1"].Revision)
	assert.Empty(t, conflicts.entries)
	assert.Zero(t, r.ConsecutiveFailures())
}

func TestDrainNetworkFailureKeepsEntryPending(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	committed := newFakeCommitted()
	r := newTestReconciler(t, q, rs, committed, &fakeConflicts{})

	q.add(testRecord("rec-1", time.Now().UTC()))
	rs.respond("rec-1", nil, fmt.Errorf("%w: connection refused", attendance.ErrNetwork))

	result, err := r.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Committed)
	assert.Equal(t, attendance.SyncPending, q.state("rec-1"))
	assert.Empty(t, committed.records)
	assert.Equal(t, 1, r.ConsecutiveFailures())

	// The next successful cycle resets the failure streak.
	q.mu.Lock()
	q.entries["rec-1"].NextRetryAt = time.Time{}
	q.mu.Unlock()
	result, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Committed)
	assert.Zero(t, r.ConsecutiveFailures())
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	q := newFakeQueue(1)
	rs := newFakeRemote()
	r := newTestReconciler(t, q, rs, newFakeCommitted(), &fakeConflicts{})

	var deadLettered []string
	r.OnDeadLetter(func(entry *attendance.QueueEntry) {
		deadLettered = append(deadLettered, entry.Record.RecordID)
	})

	q.add(testRecord("rec-1", time.Now().UTC()))
	rs.respond("rec-1", nil, fmt.Errorf("%w: timeout", attendance.ErrNetwork))

	result, err := r.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Dead)
	assert.Equal(t, attendance.SyncDead, q.state("rec-1"))
	assert.Equal(t, []string{"rec-1"}, deadLettered)
}

func TestDrainConflictRemoteWins(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	committed := newFakeCommitted()
	conflicts := &fakeConflicts{}
	r := newTestReconciler(t, q, rs, committed, conflicts)

	now := time.Now().UTC()
	local := testRecord("rec-1", now)
	remoteRec := testRecord("rec-1", now.Add(-time.Hour))
	remoteRec.Outcome = attendance.OutcomeVoided
	remoteRec.Revision = 3

	q.add(local)
	rs.respond("rec-1", &remote.PutResult{
		Status: remote.StatusConflict, Revision: 3, Remote: &remoteRec,
	}, nil)

	result, err := r.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Conflicted)
	assert.Equal(t, 1, result.Committed)
	assert.Empty(t, rs.overwrites)
	assert.Equal(t, attendance.SyncCommitted, q.state("rec-1"))

	stored := committed.records["rec-1"]
	assert.Equal(t, attendance.OutcomeVoided, stored.Outcome)
	assert.Equal(t, int64(3), stored.Revision)

	require.Len(t, conflicts.entries, 1)
	assert.Equal(t, attendance.ResolutionKeepRemote, conflicts.entries[0].Resolution)
}

func TestDrainConflictLocalWins(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	committed := newFakeCommitted()
	conflicts := &fakeConflicts{}
	r := newTestReconciler(t, q, rs, committed, conflicts)

	now := time.Now().UTC()
	local := testRecord("rec-1", now)
	local.Revision = 4
	remoteRec := testRecord("rec-1", now.Add(-time.Hour))
	remoteRec.Revision = 2

	q.add(local)
	rs.respond("rec-1", &remote.PutResult{
		Status: remote.StatusConflict, Revision: 2, Remote: &remoteRec,
	}, nil)
	rs.overwriteRevision = 5

	result, err := r.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Conflicted)
	assert.Equal(t, 1, result.Committed)
	assert.Equal(t, []string{"rec-1"}, rs.overwrites)

	stored := committed.records["rec-1"]
	assert.Equal(t, attendance.OutcomeConfirmed, stored.Outcome)
	assert.Equal(t, int64(5), stored.Revision)

	require.Len(t, conflicts.entries, 1)
	assert.Equal(t, attendance.ResolutionKeepLocal, conflicts.entries[0].Resolution)
}

func TestDrainsNeverOverlap(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	rs.putDelay = 100 * time.Millisecond
	r := newTestReconciler(t, q, rs, newFakeCommitted(), &fakeConflicts{})

	for i := 0; i < 5; i++ {
		q.add(testRecord(fmt.Sprintf("rec-%d", i), time.Now().UTC()))
	}

	var wg sync.WaitGroup
	var overlapped, succeeded int
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Drain(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrDrainInProgress) {
				overlapped++
			} else if err == nil {
				succeeded++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, overlapped)
	assert.Equal(t, 1, succeeded)
	// Every put happened exactly once.
	assert.Len(t, rs.puts, 5)
}

func TestDrainCancellationLeavesRemainderPending(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	rs.putDelay = 50 * time.Millisecond
	r := newTestReconciler(t, q, rs, newFakeCommitted(), &fakeConflicts{})

	for i := 0; i < 10; i++ {
		q.add(testRecord(fmt.Sprintf("rec-%d", i), time.Now().UTC()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(120 * time.Millisecond)
		cancel()
	}()

	result, err := r.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Less(t, result.Attempted, 10)
	assert.Equal(t, result.Attempted, result.Committed+result.Failed)

	// Nothing is stranded in Uploading; untouched entries are still drainable.
	remaining, qerr := q.Drainable()
	require.NoError(t, qerr)
	assert.Len(t, remaining, 10-result.Attempted)
	for i := 0; i < 10; i++ {
		assert.NotEqual(t, attendance.SyncUploading, q.state(fmt.Sprintf("rec-%d", i)))
	}
}

func TestDrainEmptyQueueIsHealthyNoop(t *testing.T) {
	q := newFakeQueue(8)
	r := newTestReconciler(t, q, newFakeRemote(), newFakeCommitted(), &fakeConflicts{})

	result, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, r.ConsecutiveFailures())

	status := r.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastDrainAt)
}

func TestWorkerTriggerRunsDrain(t *testing.T) {
	q := newFakeQueue(8)
	rs := newFakeRemote()
	r := newTestReconciler(t, q, rs, newFakeCommitted(), &fakeConflicts{})
	w := NewWorker(r, time.Hour, time.Minute, 15*time.Minute, newTestLogger(t))

	q.add(testRecord("rec-1", time.Now().UTC()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Trigger()
	require.Eventually(t, func() bool {
		return q.state("rec-1") == attendance.SyncCommitted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
