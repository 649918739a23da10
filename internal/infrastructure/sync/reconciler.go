// Package sync implements the reconciler that drains the local durable queue
// into the remote authoritative store.
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
	"github.com/attendly/attendly-go/internal/infrastructure/remote"
)

// ErrDrainInProgress is returned when a drain is requested while another
// drain is still running. Drains never overlap.
var ErrDrainInProgress = errors.New("drain already in progress")

// Queue is the slice of the durable queue the reconciler drives.
type Queue interface {
	Drainable() ([]*attendance.QueueEntry, error)
	MarkUploading(recordID string) error
	MarkCommitted(recordID string) error
	MarkFailed(recordID string, cause error) (*attendance.QueueEntry, error)
}

// CommittedStore receives records acknowledged by the remote store.
type CommittedStore interface {
	StoreCommitted(rec attendance.Record, committedAt time.Time) error
}

// ConflictLog receives resolved conflicts for audit.
type ConflictLog interface {
	Append(entry attendance.ConflictLogEntry) error
}

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	Attempted  int       `json:"attempted"`
	Committed  int       `json:"committed"`
	Conflicted int       `json:"conflicted"`
	Failed     int       `json:"failed"`
	Dead       int       `json:"dead"`
	StartedAt  time.Time `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Status reports reconciler health for the sync status endpoint.
type Status struct {
	Running             bool         `json:"running"`
	LastDrainAt         *time.Time   `json:"lastDrainAt,omitempty"`
	LastResult          *DrainResult `json:"lastResult,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
}

// Reconciler drains Pending queue entries to the remote store, resolving
// conflicts deterministically. Exactly one drain runs at a time; concurrent
// requests get ErrDrainInProgress instead of a second pass over the same
// entries.
type Reconciler struct {
	queue      Queue
	remote     remote.Store
	committed  CommittedStore
	conflicts  ConflictLog
	logger     *logging.ChanneledLogger
	tracker    *performance.Tracker
	putTimeout time.Duration
	now        func() time.Time

	running atomic.Bool

	mu           sync.Mutex
	lastDrainAt  *time.Time
	lastResult   *DrainResult
	failures     int
	onCommitted  func(rec attendance.Record)
	onDeadLetter func(entry *attendance.QueueEntry)
}

// NewReconciler creates a reconciler.
func NewReconciler(q Queue, rs remote.Store, committed CommittedStore, conflicts ConflictLog,
	putTimeout time.Duration, tracker *performance.Tracker, logger *logging.ChanneledLogger,
) *Reconciler {
	return &Reconciler{
		queue:      q,
		remote:     rs,
		committed:  committed,
		conflicts:  conflicts,
		logger:     logger,
		tracker:    tracker,
		putTimeout: putTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the reconciler clock. Intended for tests.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// OnCommitted registers a callback fired after each remote commit. Used by
// the live attendance feed.
func (r *Reconciler) OnCommitted(fn func(rec attendance.Record)) { r.onCommitted = fn }

// OnDeadLetter registers a callback fired when an entry enters the
// dead-letter set. Used by the alerting pipeline.
func (r *Reconciler) OnDeadLetter(fn func(entry *attendance.QueueEntry)) { r.onDeadLetter = fn }

// Status returns the current reconciler status.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:             r.running.Load(),
		LastDrainAt:         r.lastDrainAt,
		LastResult:          r.lastResult,
		ConsecutiveFailures: r.failures,
	}
}

// ConsecutiveFailures returns the count of drain cycles in a row that made no
// progress. The periodic worker uses it to back off.
func (r *Reconciler) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// Drain uploads every currently drainable entry. Each entry ends the cycle
// Pending (retry scheduled), Committed, or Dead; cancellation between entries
// leaves the remainder Pending for the next cycle. Safe to call from any
// goroutine.
func (r *Reconciler) Drain(ctx context.Context) (*DrainResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer r.running.Store(false)

	marker := r.tracker.StartOperation("sync:drain", "reconciler")
	start := r.now()
	result := &DrainResult{StartedAt: start}

	entries, err := r.queue.Drainable()
	if err != nil {
		marker.SetError(err)
		r.tracker.CompleteOperation(marker)
		r.recordResult(result, false)
		return nil, err
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			r.logger.Sync().Info("Drain cancelled, remaining entries stay pending",
				"processed", result.Attempted, "remaining", len(entries)-result.Attempted)
			marker.AddMetadata("cancelled", true)
			r.tracker.CompleteOperation(marker)
			result.Duration = r.now().Sub(start)
			r.recordResult(result, result.Committed+result.Conflicted > 0 || result.Failed == 0)
			return result, ctx.Err()
		default:
		}

		result.Attempted++
		r.drainEntry(ctx, entry, result, marker)
	}

	result.Duration = r.now().Sub(start)
	marker.AddMetadata("attempted", result.Attempted)
	r.tracker.CompleteOperation(marker)
	r.logger.LogSyncCycle(result.Committed, result.Conflicted, result.Failed, result.Dead, result.Duration)

	// A cycle counts as failed only when it attempted work and nothing got
	// through; an empty queue is a healthy no-op.
	succeeded := result.Attempted == 0 || result.Committed+result.Conflicted > 0
	r.recordResult(result, succeeded)
	return result, nil
}

func (r *Reconciler) drainEntry(ctx context.Context, entry *attendance.QueueEntry, result *DrainResult, marker *performance.Marker) {
	recordID := entry.Record.RecordID

	if err := r.queue.MarkUploading(recordID); err != nil {
		// Entry changed state under us (requeued, committed elsewhere). Skip.
		r.logger.Sync().Debug("Skipping entry no longer pending", "recordId", recordID)
		return
	}

	putCtx, cancel := context.WithTimeout(ctx, r.putTimeout)
	res, err := r.remote.Put(putCtx, entry.Record, entry.Record.Revision)
	cancel()

	if err != nil {
		marker.AddFailed()
		r.failEntry(recordID, err, result)
		return
	}

	switch res.Status {
	case remote.StatusCommitted:
		r.commitEntry(entry.Record, res.Revision, result)
		marker.AddProcessed()

	case remote.StatusConflict:
		r.resolveConflict(ctx, entry, res, result)
		marker.AddProcessed()
	}
}

// resolveConflict applies last-writer-wins on the server revision counter.
// The loser is logged for audit and the entry always ends Committed; a
// conflict is never a stuck state.
func (r *Reconciler) resolveConflict(ctx context.Context, entry *attendance.QueueEntry, res *remote.PutResult, result *DrainResult) {
	local := entry.Record
	remoteRec := *res.Remote

	logEntry := attendance.ConflictLogEntry{
		RecordID:       local.RecordID,
		LocalRevision:  local.Revision,
		RemoteRevision: remoteRec.Revision,
		LocalRecord:    local,
		RemoteRecord:   remoteRec,
		ResolvedAt:     r.now(),
	}

	if local.Revision >= remoteRec.Revision {
		// Local wins: force-write it and commit at the new revision.
		putCtx, cancel := context.WithTimeout(ctx, r.putTimeout)
		revision, err := r.remote.Overwrite(putCtx, local)
		cancel()
		if err != nil {
			r.failEntry(local.RecordID, err, result)
			return
		}
		logEntry.Resolution = attendance.ResolutionKeepLocal
		if err := r.conflicts.Append(logEntry); err != nil {
			r.logger.Sync().Error("Failed to log resolved conflict", "recordId", local.RecordID, "error", err.Error())
		}
		r.commitEntry(local, revision, result)
	} else {
		// Remote wins: adopt the remote copy locally.
		logEntry.Resolution = attendance.ResolutionKeepRemote
		if err := r.conflicts.Append(logEntry); err != nil {
			r.logger.Sync().Error("Failed to log resolved conflict", "recordId", local.RecordID, "error", err.Error())
		}
		r.commitEntry(remoteRec, remoteRec.Revision, result)
	}
	result.Conflicted++
}

func (r *Reconciler) commitEntry(rec attendance.Record, revision int64, result *DrainResult) {
	rec.Revision = revision

	if err := r.committed.StoreCommitted(rec, r.now()); err != nil {
		// The remote copy is durable; losing the local projection is
		// recoverable, so log and keep going.
		r.logger.Sync().Error("Failed to store committed record locally", "recordId", rec.RecordID, "error", err.Error())
	}
	if err := r.queue.MarkCommitted(rec.RecordID); err != nil {
		r.logger.Sync().Error("Failed to remove committed entry from queue", "recordId", rec.RecordID, "error", err.Error())
		result.Failed++
		return
	}

	result.Committed++
	if r.onCommitted != nil {
		r.onCommitted(rec)
	}
}

func (r *Reconciler) failEntry(recordID string, cause error, result *DrainResult) {
	updated, err := r.queue.MarkFailed(recordID, cause)
	if err != nil {
		r.logger.Sync().Error("Failed to record upload failure", "recordId", recordID, "error", err.Error())
		result.Failed++
		return
	}

	if updated.SyncState == attendance.SyncDead {
		result.Dead++
		r.logger.Sync().Warn("Entry dead-lettered after repeated failures",
			"recordId", recordID, "attempts", updated.Attempts)
		if r.onDeadLetter != nil {
			r.onDeadLetter(updated)
		}
	} else {
		result.Failed++
	}
}

func (r *Reconciler) recordResult(result *DrainResult, succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.lastDrainAt = &now
	r.lastResult = result
	if succeeded {
		r.failures = 0
	} else {
		r.failures++
	}
}
