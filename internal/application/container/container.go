// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"
	"time"

	"github.com/attendly/attendly-go/internal/application/services"
	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/domain/session"
	"github.com/attendly/attendly-go/internal/infrastructure/email"
	"github.com/attendly/attendly-go/internal/infrastructure/messaging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
	persistence "github.com/attendly/attendly-go/internal/infrastructure/persistence/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/database"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/queue"
	"github.com/attendly/attendly-go/internal/infrastructure/remote"
	"github.com/attendly/attendly-go/internal/infrastructure/security"
	"github.com/attendly/attendly-go/internal/infrastructure/sweeper"
	syncer "github.com/attendly/attendly-go/internal/infrastructure/sync"
	"github.com/attendly/attendly-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Observability
	Logger         *logging.ChanneledLogger
	Tracker        *performance.Tracker
	LogBroadcaster *logging.LogBroadcaster

	// Persistence
	DB          *database.DB
	Queue       *queue.DurableQueue
	Sessions    *persistence.SessionRepository
	Records     *persistence.RecordRepository
	Conflicts   *persistence.ConflictRepository
	Zones       *persistence.ZoneRepository
	RemoteStore *remote.LibsqlStore

	// Domain
	Machine *session.Machine

	// Sync
	Reconciler *syncer.Reconciler
	SyncWorker *syncer.Worker
	Sweeper    *sweeper.Worker

	// Messaging
	Broadcaster  *messaging.SSEBroadcaster
	LiveHub      *messaging.LiveHub
	EmailService email.Service

	// Application Services
	AttendanceService *services.AttendanceService
	ZoneService       *services.ZoneService
	ReportService     *services.ReportService
	SyncService       *services.SyncService
}

// NewContainer creates and wires all singleton services from config.
func NewContainer() (*Container, error) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())

	db, err := database.NewLocalConnection(config.LocalDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	if err := database.NewSchemaCreator().CreateSchema(db.DB); err != nil {
		return nil, fmt.Errorf("failed to create local schema: %w", err)
	}

	retryPolicy := queue.RetryPolicy{
		InitialInterval: config.QueueRetryInitialInterval,
		MaxInterval:     config.QueueRetryMaxInterval,
		Multiplier:      config.QueueRetryMultiplier,
		Jitter:          config.QueueRetryJitter,
		MaxAttempts:     config.QueueMaxAttempts,
	}
	durableQueue := queue.NewDurableQueue(db.DB, retryPolicy, logger)

	reset, quarantined, err := durableQueue.RecoverOnStartup()
	if err != nil {
		return nil, fmt.Errorf("failed to recover queue on startup: %w", err)
	}
	if reset > 0 || quarantined > 0 {
		logger.Startup().Warn("Queue recovery adjusted entries", "resetToPending", reset, "quarantined", quarantined)
	}

	sessionRepo := persistence.NewSessionRepository(db.DB, durableQueue, logger)
	recordRepo := persistence.NewRecordRepository(db.DB, logger)
	conflictRepo := persistence.NewConflictRepository(db.DB, logger)
	zoneRepo := persistence.NewZoneRepository(db.DB, logger)

	expiryOutcome := attendance.OutcomeConfirmed
	if config.SessionExpiryOutcome == "void" {
		expiryOutcome = attendance.OutcomeVoided
	}
	machine := session.NewMachine(sessionRepo, zoneRepo,
		session.ExpiryPolicy{MaxOpenDuration: config.SessionMaxOpenDuration, Outcome: expiryOutcome},
		security.NewSessionID, security.NewRecordID, nil)

	if config.RemoteDatabaseURL == "" {
		return nil, fmt.Errorf("REMOTE_DATABASE_URL is required")
	}
	remoteStore, err := remote.NewLibsqlStore(config.RemoteDatabaseURL, config.RemoteAuthToken, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}

	reconciler := syncer.NewReconciler(durableQueue, remoteStore, recordRepo, conflictRepo,
		config.RemotePutTimeout, tracker, logger)
	syncWorker := syncer.NewWorker(reconciler, config.DrainInterval,
		config.DrainFailureBackoff, config.DrainFailureMax, logger)

	broadcaster := messaging.NewSSEBroadcaster(logger)
	liveHub := messaging.NewLiveHub(logger)

	var emailService email.Service
	if config.AlertsEnabled && config.ResendAPIKey != "" {
		emailService, err = email.NewService(config.ResendAPIKey, config.AlertFromAddress)
		if err != nil {
			logger.Startup().Warn("Email alerts disabled", "reason", err.Error())
		}
	}

	sweepWorker := sweeper.NewWorker(machine, liveHub, syncWorker,
		config.SessionSweepInterval, tracker, logger)

	c := &Container{
		Logger:         logger,
		Tracker:        tracker,
		LogBroadcaster: logging.GetBroadcaster(),
		DB:             db,
		Queue:          durableQueue,
		Sessions:       sessionRepo,
		Records:        recordRepo,
		Conflicts:      conflictRepo,
		Zones:          zoneRepo,
		RemoteStore:    remoteStore,
		Machine:        machine,
		Reconciler:     reconciler,
		SyncWorker:     syncWorker,
		Sweeper:        sweepWorker,
		Broadcaster:    broadcaster,
		LiveHub:        liveHub,
		EmailService:   emailService,

		AttendanceService: services.NewAttendanceService(machine, zoneRepo, liveHub, tracker, logger),
		ZoneService:       services.NewZoneService(zoneRepo),
		ReportService:     services.NewReportService(recordRepo, tracker),
		SyncService: services.NewSyncService(durableQueue, reconciler, syncWorker,
			broadcaster, liveHub, emailService, config.AdminEmailAddress, logger),
	}
	return c, nil
}

// Close releases the container's long-lived resources.
func (c *Container) Close() error {
	var firstErr error
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Logger != nil {
		if err := c.Logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// uptime marker for health reporting
var startedAt = time.Now().UTC()

// StartedAt reports process start time.
func StartedAt() time.Time { return startedAt }
