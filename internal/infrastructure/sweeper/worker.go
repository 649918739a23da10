// Package sweeper provides the background worker that force-terminates
// sessions left open past the configured maximum.
package sweeper

import (
	"context"
	"time"

	"github.com/attendly/attendly-go/internal/domain/session"
	"github.com/attendly/attendly-go/internal/infrastructure/messaging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
)

// DrainTrigger nudges the sync worker after a sweep emits records.
type DrainTrigger interface {
	Trigger()
}

// Worker periodically expires overdue sessions through the state machine.
// Every expiry emits a flagged record into the durable queue like any other
// terminal transition.
type Worker struct {
	machine  *session.Machine
	hub      *messaging.LiveHub
	drain    DrainTrigger
	interval time.Duration
	tracker  *performance.Tracker
	logger   *logging.ChanneledLogger
}

// NewWorker creates a new session sweep worker
func NewWorker(machine *session.Machine, hub *messaging.LiveHub, drain DrainTrigger,
	interval time.Duration, tracker *performance.Tracker, logger *logging.ChanneledLogger,
) *Worker {
	return &Worker{
		machine:  machine,
		hub:      hub,
		drain:    drain,
		interval: interval,
		tracker:  tracker,
		logger:   logger,
	}
}

// Start begins the sweep routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Session().Info("Session sweep worker started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Session().Info("Session sweep worker stopping")
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// Sweep runs one expiry pass immediately. Also used at startup so sessions
// that went overdue while the process was down are closed promptly.
func (w *Worker) Sweep() int {
	return w.sweep()
}

func (w *Worker) sweep() int {
	marker := w.tracker.StartOperation("session:sweep", "sweeper")
	defer w.tracker.CompleteOperation(marker)

	emitted, err := w.machine.ExpireOverdue()
	if err != nil {
		marker.SetError(err)
		w.logger.Session().Error("Session sweep failed", "error", err.Error(), "expired", len(emitted))
	}

	for _, rec := range emitted {
		w.hub.PublishSessionClosed(rec)
	}

	if len(emitted) > 0 {
		w.logger.Session().Warn("Overdue sessions expired", "count", len(emitted))
		marker.AddMetadata("expired", len(emitted))
		if w.drain != nil {
			w.drain.Trigger()
		}
	}
	return len(emitted)
}
