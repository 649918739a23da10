// Package config provides centralized default values for Attendly
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%f (default: %f)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Local Database
	LocalDBPath              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Remote Store (libsql/Turso)
	RemoteDatabaseURL string
	RemoteAuthToken   string
	RemotePutTimeout  time.Duration

	// Session Policy
	SessionMaxOpenDuration time.Duration
	SessionExpiryOutcome   string // "close" or "void"
	SessionSweepInterval   time.Duration

	// Queue / Retry Policy
	QueueRetryInitialInterval time.Duration
	QueueRetryMaxInterval     time.Duration
	QueueRetryMultiplier      float64
	QueueRetryJitter          float64
	QueueMaxAttempts          int

	// Sync / Drain
	DrainInterval        time.Duration
	DrainFailureBackoff  time.Duration
	DrainFailureMax      time.Duration
	ConnectivityDebounce time.Duration

	// SSE Configuration
	SSEHeartbeatIntervalSeconds int
	SSEConnectionTimeoutMinutes int

	// Auth
	JWTSecret         string
	AdminKeyHash      string
	TokenLifetime     time.Duration
	AdminEmailAddress string

	// Email Alerts (Resend)
	ResendAPIKey     string
	AlertFromAddress string
	AlertsEnabled    bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Local Database
	LocalDBPath = getEnvString("LOCAL_DB_PATH", "data/attendly.db")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 50*time.Millisecond)

	// Remote Store
	RemoteDatabaseURL = getEnvString("REMOTE_DATABASE_URL", "")
	RemoteAuthToken = getEnvString("REMOTE_AUTH_TOKEN", "")
	RemotePutTimeout = getEnvDuration("REMOTE_PUT_TIMEOUT", 10*time.Second)

	// Session Policy
	SessionMaxOpenDuration = getEnvDuration("SESSION_MAX_OPEN_DURATION", 14*time.Hour)
	SessionExpiryOutcome = getEnvString("SESSION_EXPIRY_OUTCOME", "close")
	SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)

	// Queue / Retry Policy
	QueueRetryInitialInterval = getEnvDuration("QUEUE_RETRY_INITIAL_INTERVAL", 30*time.Second)
	QueueRetryMaxInterval = getEnvDuration("QUEUE_RETRY_MAX_INTERVAL", 30*time.Minute)
	QueueRetryMultiplier = getEnvFloat("QUEUE_RETRY_MULTIPLIER", 2.0)
	QueueRetryJitter = getEnvFloat("QUEUE_RETRY_JITTER", 0.25)
	QueueMaxAttempts = getEnvInt("QUEUE_MAX_ATTEMPTS", 8)

	// Sync / Drain
	DrainInterval = getEnvDuration("DRAIN_INTERVAL", 2*time.Minute)
	DrainFailureBackoff = getEnvDuration("DRAIN_FAILURE_BACKOFF", 1*time.Minute)
	DrainFailureMax = getEnvDuration("DRAIN_FAILURE_MAX", 15*time.Minute)
	ConnectivityDebounce = getEnvDuration("CONNECTIVITY_DEBOUNCE", 5*time.Second)

	// SSE Configuration
	SSEHeartbeatIntervalSeconds = getEnvInt("SSE_HEARTBEAT_INTERVAL_SECONDS", 30)
	SSEConnectionTimeoutMinutes = getEnvInt("SSE_CONNECTION_TIMEOUT_MINUTES", 30)

	// Auth
	JWTSecret = getEnvString("JWT_SECRET", "")
	AdminKeyHash = getEnvString("ADMIN_KEY_HASH", "")
	TokenLifetime = getEnvDuration("TOKEN_LIFETIME", 12*time.Hour)
	AdminEmailAddress = getEnvString("ADMIN_EMAIL_ADDRESS", "")

	// Email Alerts
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	AlertFromAddress = getEnvString("ALERT_FROM_ADDRESS", "alerts@attendly.local")
	AlertsEnabled = getEnvBool("ALERTS_ENABLED", true)
}
