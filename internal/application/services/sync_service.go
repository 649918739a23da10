package services

import (
	"fmt"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/email"
	"github.com/attendly/attendly-go/internal/infrastructure/messaging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/queue"
	syncer "github.com/attendly/attendly-go/internal/infrastructure/sync"
)

// SyncService exposes queue inspection and sync control on top of the
// reconciler, and wires sync outcomes to the notification surfaces: the SSE
// attention channel, the live dashboard hub, and the dead-letter email alert.
type SyncService struct {
	queue       *queue.DurableQueue
	reconciler  *syncer.Reconciler
	worker      *syncer.Worker
	broadcaster messaging.Broadcaster
	hub         *messaging.LiveHub
	emailer     email.Service
	alertEmail  string
	logger      *logging.ChanneledLogger
}

// NewSyncService creates a new sync service and registers itself on the
// reconciler's commit and dead-letter hooks.
func NewSyncService(q *queue.DurableQueue, reconciler *syncer.Reconciler, worker *syncer.Worker,
	broadcaster messaging.Broadcaster, hub *messaging.LiveHub, emailer email.Service, alertEmail string,
	logger *logging.ChanneledLogger,
) *SyncService {
	s := &SyncService{
		queue:       q,
		reconciler:  reconciler,
		worker:      worker,
		broadcaster: broadcaster,
		hub:         hub,
		emailer:     emailer,
		alertEmail:  alertEmail,
		logger:      logger,
	}
	reconciler.OnCommitted(s.handleCommitted)
	reconciler.OnDeadLetter(s.handleDeadLetter)
	return s
}

// QueueStatus returns pending, uploading and dead-letter counts.
func (s *SyncService) QueueStatus() (*attendance.QueueStatus, error) {
	status, err := s.queue.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue status: %w", err)
	}
	return status, nil
}

// SyncStatus reports the reconciler's current state and last drain result.
func (s *SyncService) SyncStatus() syncer.Status {
	return s.reconciler.Status()
}

// DeadLetters lists entries that exhausted their retry budget.
func (s *SyncService) DeadLetters() ([]*attendance.QueueEntry, error) {
	entries, err := s.queue.DeadLetters()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

// Requeue moves a dead-letter entry back to pending with a fresh retry budget
// and nudges the worker so it drains promptly.
func (s *SyncService) Requeue(recordID string) error {
	if recordID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	if err := s.queue.Requeue(recordID); err != nil {
		return fmt.Errorf("failed to requeue record %s: %w", recordID, err)
	}

	s.logger.Queue().Info("Dead-letter record requeued", "recordId", recordID)
	s.worker.Trigger()
	return nil
}

// TriggerDrain requests an immediate drain cycle. Coalesced: if a drain is
// already scheduled or running, the request folds into it.
func (s *SyncService) TriggerDrain() {
	s.worker.Trigger()
}

func (s *SyncService) handleCommitted(rec attendance.Record) {
	s.hub.PublishRecordSynced(rec)
	s.notifyQueueChanged(rec.UserID)
}

func (s *SyncService) handleDeadLetter(entry *attendance.QueueEntry) {
	s.notifyQueueChanged(entry.Record.UserID)

	if s.emailer == nil || s.alertEmail == "" {
		return
	}

	status, err := s.queue.Status()
	deadTotal := 0
	if err == nil {
		deadTotal = status.Dead
	}

	if err := s.emailer.SendDeadLetterAlert(s.alertEmail, entry, deadTotal); err != nil {
		s.logger.Alert().Error("Failed to send dead-letter alert",
			"recordId", entry.Record.RecordID, "error", err.Error())
	}
}

// notifyQueueChanged pushes the fresh queue status to the user's SSE
// attention stream.
func (s *SyncService) notifyQueueChanged(userID string) {
	if s.broadcaster == nil || s.broadcaster.GetConnectionCount(userID) == 0 {
		return
	}
	status, err := s.queue.Status()
	if err != nil {
		s.logger.Queue().Error("Failed to read queue status for attention broadcast", "error", err.Error())
		return
	}
	s.broadcaster.BroadcastAttention(userID, *status)
}
