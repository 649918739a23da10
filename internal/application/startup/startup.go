// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attendly/attendly-go/internal/application/container"
	"github.com/attendly/attendly-go/internal/infrastructure/persistence/database"
	"github.com/attendly/attendly-go/internal/presentation/http/server"
	"github.com/attendly/attendly-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence and blocks until the
// process receives a shutdown signal.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `
   ▄▄▄ ▄ ▄ ▄  ▄▄▄ ▄▄ ▄▄  ▄▄ ▄ ▄
  ▄▀▀█ █▀  █▀ █▄█ █▀▄ █▀▄ █  █▄█
  █▄▄█ █▄  █▄ █▄▄ █ █ █▄▀ █▄ ▄█▀
` + "\033[97m" + `
  attendance sync agent
` + "\033[0m")

	// Step 1: Create dependency injection container
	log.Println("Initializing dependency injection container...")
	appContainer, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}

	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 2: Verify the remote store and ensure its schema. Failure is not
	// fatal: the queue absorbs remote unavailability and the reconciler
	// retries.
	if err := database.TestRemoteConnection(config.RemoteDatabaseURL, config.RemoteAuthToken, logger); err != nil {
		logger.Startup().Warn("Remote store unreachable at startup, continuing offline", "error", err.Error())
	} else {
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 10*time.Second)
		if err := appContainer.RemoteStore.EnsureSchema(schemaCtx); err != nil {
			logger.Startup().Warn("Remote schema check failed, continuing offline", "error", err.Error())
		}
		cancelSchema()
	}

	// Step 3: Start background workers
	logger.Startup().Info("Starting background workers...")
	go appContainer.LiveHub.Run()
	go appContainer.SyncWorker.Start(ctx)
	go appContainer.Sweeper.Start(ctx)

	// Close out sessions that went overdue while the process was down, then
	// nudge an immediate drain for anything recovered into the queue.
	if expired := appContainer.Sweeper.Sweep(); expired > 0 {
		logger.Startup().Warn("Expired overdue sessions at startup", "count", expired)
	}
	appContainer.SyncWorker.Trigger()

	// Step 4: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	port := config.Port
	httpServer := server.New(port, appContainer)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Step 5: Wait for shutdown signal
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Stop background workers; an in-flight drain observes the cancel and
	// leaves the remainder pending for the next run.
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Closing container resources...")
	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	if err := appContainer.Close(); err != nil {
		return fmt.Errorf("error closing container: %w", err)
	}
	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
