package sync

import (
	"context"
	"errors"
	"time"

	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/cenkalti/backoff/v4"
)

// Worker runs periodic drain cycles. On consecutive cycles that made no
// progress it stretches the wait with exponential backoff instead of hammering
// an unreachable remote; any successful cycle snaps back to the base interval.
type Worker struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *logging.ChanneledLogger

	failureBackoff *backoff.ExponentialBackOff
	trigger        chan struct{}
}

// NewWorker creates a drain worker.
func NewWorker(r *Reconciler, interval, failureInitial, failureMax time.Duration, logger *logging.ChanneledLogger) *Worker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = failureInitial
	b.MaxInterval = failureMax
	b.MaxElapsedTime = 0
	b.Reset()

	return &Worker{
		reconciler:     r,
		interval:       interval,
		logger:         logger,
		failureBackoff: b,
		trigger:        make(chan struct{}, 1),
	}
}

// Trigger requests an immediate drain. Non-blocking; used by the manual HTTP
// endpoint and the connectivity monitor when the network comes back.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// A drain request is already queued.
	}
}

// Start begins the drain worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	w.logger.Sync().Info("Sync drain worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Sync().Info("Sync drain worker stopping")
			return
		case <-w.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.drainOnce(ctx))
		case <-timer.C:
			timer.Reset(w.drainOnce(ctx))
		}
	}
}

// drainOnce runs a single cycle and returns the wait before the next one.
func (w *Worker) drainOnce(ctx context.Context) time.Duration {
	_, err := w.reconciler.Drain(ctx)
	if err != nil && !errors.Is(err, ErrDrainInProgress) && !errors.Is(err, context.Canceled) {
		w.logger.Sync().Error("Drain cycle failed", "error", err.Error())
	}

	if w.reconciler.ConsecutiveFailures() > 0 {
		wait := w.failureBackoff.NextBackOff()
		w.logger.Sync().Info("Backing off after failed drain cycle",
			"consecutiveFailures", w.reconciler.ConsecutiveFailures(), "nextDrainIn", wait)
		return wait
	}

	w.failureBackoff.Reset()
	return w.interval
}
