// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// NewLocalConnection opens the agent's local SQLite store, creating the
// parent directory on first run and applying the pool limits from config.
// WAL mode keeps durable-queue flushes cheap without giving up crash safety.
func NewLocalConnection(path string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Database().Error("Failed to create local database directory", "error", err.Error(), "dir", dir)
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		logger.Database().Error("Failed to open local database", "error", err.Error(), "path", path)
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		logger.Database().Error("Local database ping failed", "error", err.Error(), "path", path)
		return nil, err
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(config.DBConnMaxIdleMinutes) * time.Minute)

	logger.Database().Info("Local database connection established", "path", path, "duration", time.Since(start))
	return &DB{db}, nil
}
