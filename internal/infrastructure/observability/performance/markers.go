// Package performance provides performance monitoring data structures and utilities
// for tracking operation performance across the attendance agent.
package performance

import (
	"runtime"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation   string         `json:"operation"`       // e.g., "session:check_in", "sync:drain"
	Component   string         `json:"component"`       // Owning component, e.g. "reconciler", "http"
	StartTime   time.Time      `json:"startTime"`       // When the operation started
	EndTime     time.Time      `json:"endTime"`         // When the operation completed
	Duration    time.Duration  `json:"duration"`        // Total operation duration
	Success     bool           `json:"success"`         // Whether the operation completed successfully
	Error       string         `json:"error,omitempty"` // Error message if operation failed
	Metadata    map[string]any `json:"metadata"`        // Additional operation-specific data
	MemoryUsage int64          `json:"memoryUsage"`     // Memory allocated during operation (bytes)
	Processed   int            `json:"processed"`       // Items handled during the operation
	Failed      int            `json:"failed"`          // Items that failed during the operation
	Completed   bool           `json:"completed"`       // Whether Complete() has been called
}

// Complete marks the operation as finished and calculates final metrics
func (m *Marker) Complete() {
	if m.Completed {
		return // Prevent double completion
	}

	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true

	// Capture memory usage at completion
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage = int64(memStats.Alloc)
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// AddProcessed increments the processed-item counter
func (m *Marker) AddProcessed() {
	m.Processed++
}

// AddFailed increments the failed-item counter
func (m *Marker) AddFailed() {
	m.Failed++
}

// GetSuccessRatio returns the per-item success ratio (0.0 to 1.0)
func (m *Marker) GetSuccessRatio() float64 {
	total := m.Processed + m.Failed
	if total == 0 {
		return 0.0
	}
	return float64(m.Processed) / float64(total)
}

// CapturePerformanceTracker contains markers for attendance capture operations
type CapturePerformanceTracker struct {
	GeofenceEvaluation *Marker `json:"geofenceEvaluation,omitempty"`
	CheckIn            *Marker `json:"checkIn,omitempty"`
	CheckOut           *Marker `json:"checkOut,omitempty"`
	SessionSweep       *Marker `json:"sessionSweep,omitempty"`
	JWTGeneration      *Marker `json:"jwtGeneration,omitempty"`
}

// SyncPerformanceTracker contains markers for queue and reconciler operations
type SyncPerformanceTracker struct {
	QueueAppend        *Marker `json:"queueAppend,omitempty"`
	DrainCycle         *Marker `json:"drainCycle,omitempty"`
	RemotePut          *Marker `json:"remotePut,omitempty"`
	ConflictResolution *Marker `json:"conflictResolution,omitempty"`
	StartupRecovery    *Marker `json:"startupRecovery,omitempty"`
}

// ReportPerformanceTracker contains markers for report projection operations
type ReportPerformanceTracker struct {
	RecordListing      *Marker `json:"recordListing,omitempty"`
	SummaryAggregation *Marker `json:"summaryAggregation,omitempty"`
}

// SystemPerformanceTracker contains markers for system-wide operations
type SystemPerformanceTracker struct {
	ApplicationStartup   *Marker `json:"applicationStartup,omitempty"`
	DIContainerBuild     *Marker `json:"diContainerBuild,omitempty"`
	ServerInitialization *Marker `json:"serverInitialization,omitempty"`
	GracefulShutdown     *Marker `json:"gracefulShutdown,omitempty"`
}

// PerformanceSnapshot represents a point-in-time view of system performance
type PerformanceSnapshot struct {
	Timestamp           time.Time                 `json:"timestamp"`
	Capture             *CapturePerformanceTracker `json:"capture,omitempty"`
	Sync                *SyncPerformanceTracker    `json:"sync,omitempty"`
	Report              *ReportPerformanceTracker  `json:"report,omitempty"`
	System              *SystemPerformanceTracker  `json:"system,omitempty"`
	OverallHealth       HealthStatus               `json:"overallHealth"`
	ActiveOperations    int                        `json:"activeOperations"`
	CompletedOperations int                        `json:"completedOperations"`
}

// HealthStatus represents the overall health of a system component
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"   // All operations performing within normal parameters
	HealthDegraded  HealthStatus = "degraded"  // Some operations showing performance issues
	HealthUnhealthy HealthStatus = "unhealthy" // Significant performance problems detected
	HealthUnknown   HealthStatus = "unknown"   // Unable to determine health status
)

// PerformanceAlert represents a performance threshold violation
type PerformanceAlert struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Component    string         `json:"component"`
	Severity     AlertSeverity  `json:"severity"`
	Operation    string         `json:"operation"`
	Threshold    time.Duration  `json:"threshold"`
	Actual       time.Duration  `json:"actual"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata"`
	Acknowledged bool           `json:"acknowledged"`
}

// AlertSeverity represents the severity level of a performance alert
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"     // Informational alert
	AlertWarning  AlertSeverity = "warning"  // Performance degradation detected
	AlertCritical AlertSeverity = "critical" // Serious performance issue
	AlertFatal    AlertSeverity = "fatal"    // System-threatening performance problem
)
