// Package performance provides performance tracking and monitoring capabilities
// for attendance agent operations with real-time metrics.
package performance

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers    map[string]*Marker     // Active and completed markers by unique ID
	snapshots  []*PerformanceSnapshot // Historical performance snapshots
	alerts     []*PerformanceAlert    // Active performance alerts
	thresholds *AlertThresholds       // Configurable alert thresholds
	mu         sync.RWMutex           // Protects concurrent access
	started    time.Time              // When tracking started
	config     *TrackerConfig         // Tracker configuration
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers          int           `json:"maxMarkers"`          // Maximum number of markers to retain
	MaxSnapshots        int           `json:"maxSnapshots"`        // Maximum number of snapshots to retain
	MaxAlerts           int           `json:"maxAlerts"`           // Maximum number of alerts to retain
	SnapshotInterval    time.Duration `json:"snapshotInterval"`    // How often to take performance snapshots
	CleanupInterval     time.Duration `json:"cleanupInterval"`     // How often to clean up old data
	EnableDetailedStats bool          `json:"enableDetailedStats"` // Whether to collect detailed memory stats
	EnableAlerts        bool          `json:"enableAlerts"`        // Whether to generate performance alerts
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:          10000,
		MaxSnapshots:        100,
		MaxAlerts:           500,
		SnapshotInterval:    time.Minute * 5,
		CleanupInterval:     time.Minute * 10,
		EnableDetailedStats: true,
		EnableAlerts:        true,
	}
}

// AlertThresholds defines performance thresholds for generating alerts
type AlertThresholds struct {
	// Response time thresholds
	SlowResponseThreshold     time.Duration `json:"slowResponseThreshold"`     // 500ms
	VerySlowResponseThreshold time.Duration `json:"verySlowResponseThreshold"` // 2s
	CriticalResponseThreshold time.Duration `json:"criticalResponseThreshold"` // 5s

	// Sync performance thresholds
	LowDrainSuccessRatio      float64 `json:"lowDrainSuccessRatio"`      // 0.85 (85%)
	CriticalDrainSuccessRatio float64 `json:"criticalDrainSuccessRatio"` // 0.50 (50%)

	// Memory thresholds (in MB)
	HighMemoryUsage     int64 `json:"highMemoryUsage"`     // 500MB
	CriticalMemoryUsage int64 `json:"criticalMemoryUsage"` // 1GB

	// Operation-specific thresholds
	AuthOperationThreshold     time.Duration `json:"authOperationThreshold"`     // 200ms
	CaptureOperationThreshold  time.Duration `json:"captureOperationThreshold"`  // 100ms
	DrainCycleThreshold        time.Duration `json:"drainCycleThreshold"`        // 30s
	RemotePutThreshold         time.Duration `json:"remotePutThreshold"`         // 2s
	DatabaseQueryThreshold     time.Duration `json:"databaseQueryThreshold"`     // 50ms
}

// DefaultAlertThresholds returns sensible default alert thresholds
func DefaultAlertThresholds() *AlertThresholds {
	return &AlertThresholds{
		SlowResponseThreshold:     time.Millisecond * 500,
		VerySlowResponseThreshold: time.Second * 2,
		CriticalResponseThreshold: time.Second * 5,
		LowDrainSuccessRatio:      0.85,
		CriticalDrainSuccessRatio: 0.50,
		HighMemoryUsage:           500 * 1024 * 1024,  // 500MB
		CriticalMemoryUsage:       1024 * 1024 * 1024, // 1GB
		AuthOperationThreshold:    time.Millisecond * 200,
		CaptureOperationThreshold: time.Millisecond * 100,
		DrainCycleThreshold:       time.Second * 30,
		RemotePutThreshold:        time.Second * 2,
		DatabaseQueryThreshold:    time.Millisecond * 50,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}

	tracker := &Tracker{
		markers:    make(map[string]*Marker),
		snapshots:  make([]*PerformanceSnapshot, 0),
		alerts:     make([]*PerformanceAlert, 0),
		thresholds: DefaultAlertThresholds(),
		started:    time.Now(),
		config:     config,
	}

	return tracker
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, component string) *Marker {
	marker := &Marker{
		Operation: operation,
		Component: component,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
	}

	// Generate unique ID for this marker
	markerID := fmt.Sprintf("%s_%s_%d", component, operation, time.Now().UnixNano())

	t.mu.Lock()
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// StartOperationWithContext creates a performance marker with context cancellation support
func (t *Tracker) StartOperationWithContext(ctx context.Context, operation, component string) *Marker {
	marker := t.StartOperation(operation, component)

	// Monitor context cancellation
	go func() {
		<-ctx.Done()
		if !marker.Completed {
			marker.SetError(ctx.Err())
			marker.Complete()
		}
	}()

	return marker
}

// CompleteOperation manually completes an operation and checks for alerts
func (t *Tracker) CompleteOperation(marker *Marker) {
	if marker == nil || marker.Completed {
		return
	}

	marker.Complete()

	// Check for performance alerts if enabled
	if t.config.EnableAlerts {
		t.checkForAlerts(marker)
	}
}

// checkForAlerts evaluates a completed marker against alert thresholds
func (t *Tracker) checkForAlerts(marker *Marker) {
	if marker == nil || !marker.Completed {
		return
	}

	alerts := t.evaluateThresholds(marker)

	t.mu.Lock()
	for _, alert := range alerts {
		t.alerts = append(t.alerts, alert)

		// Maintain max alerts limit
		if len(t.alerts) > t.config.MaxAlerts {
			// Remove oldest alerts
			t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
		}
	}
	t.mu.Unlock()
}

// evaluateThresholds checks a marker against all relevant thresholds
func (t *Tracker) evaluateThresholds(marker *Marker) []*PerformanceAlert {
	var alerts []*PerformanceAlert

	// Check general response time thresholds
	if marker.Duration > t.thresholds.CriticalResponseThreshold {
		alerts = append(alerts, t.createAlert(marker, AlertCritical,
			"Operation exceeded critical response time threshold"))
	} else if marker.Duration > t.thresholds.VerySlowResponseThreshold {
		alerts = append(alerts, t.createAlert(marker, AlertWarning,
			"Operation exceeded slow response time threshold"))
	}

	// Check operation-specific thresholds
	switch {
	case strings.Contains(marker.Operation, "auth"):
		if marker.Duration > t.thresholds.AuthOperationThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning,
				"Authentication operation exceeded threshold"))
		}
	case strings.Contains(marker.Operation, "check_in"), strings.Contains(marker.Operation, "check_out"):
		if marker.Duration > t.thresholds.CaptureOperationThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning,
				"Capture operation exceeded threshold"))
		}
	case strings.Contains(marker.Operation, "drain"):
		if marker.Duration > t.thresholds.DrainCycleThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning,
				"Drain cycle exceeded threshold"))
		}
	case strings.Contains(marker.Operation, "remote_put"):
		if marker.Duration > t.thresholds.RemotePutThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning,
				"Remote put exceeded threshold"))
		}
	}

	// Check per-item success ratio for batch operations
	if marker.Processed+marker.Failed > 0 {
		ratio := marker.GetSuccessRatio()
		if ratio < t.thresholds.CriticalDrainSuccessRatio {
			alerts = append(alerts, t.createAlert(marker, AlertCritical,
				"Batch success ratio critically low"))
		} else if ratio < t.thresholds.LowDrainSuccessRatio {
			alerts = append(alerts, t.createAlert(marker, AlertWarning,
				"Batch success ratio below optimal"))
		}
	}

	// Check memory usage
	memoryMB := marker.MemoryUsage / (1024 * 1024)
	if marker.MemoryUsage > t.thresholds.CriticalMemoryUsage {
		alerts = append(alerts, t.createAlert(marker, AlertCritical,
			fmt.Sprintf("Critical memory usage: %d MB", memoryMB)))
	} else if marker.MemoryUsage > t.thresholds.HighMemoryUsage {
		alerts = append(alerts, t.createAlert(marker, AlertWarning,
			fmt.Sprintf("High memory usage: %d MB", memoryMB)))
	}

	return alerts
}

// createAlert creates a new performance alert
func (t *Tracker) createAlert(marker *Marker, severity AlertSeverity, message string) *PerformanceAlert {
	return &PerformanceAlert{
		ID:        fmt.Sprintf("alert_%d", time.Now().UnixNano()),
		Timestamp: time.Now(),
		Component: marker.Component,
		Severity:  severity,
		Operation: marker.Operation,
		Actual:    marker.Duration,
		Message:   message,
		Metadata: map[string]any{
			"successRatio":  marker.GetSuccessRatio(),
			"memoryUsageMB": marker.MemoryUsage / (1024 * 1024),
			"success":       marker.Success,
		},
	}
}

// GetMetrics returns completed performance metrics
func (t *Tracker) GetMetrics() []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var metrics []Marker
	for _, marker := range t.markers {
		if marker.Completed {
			metrics = append(metrics, *marker)
		}
	}
	return metrics
}

// GetRecentMetrics returns metrics for operations completed within the specified duration
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var metrics []Marker

	for _, marker := range t.markers {
		if marker.Completed && marker.EndTime.After(cutoff) {
			metrics = append(metrics, *marker)
		}
	}
	return metrics
}

// GetActiveOperations returns currently running operations
func (t *Tracker) GetActiveOperations() []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []Marker
	for _, marker := range t.markers {
		if !marker.Completed {
			metrics := *marker
			// Calculate current duration for active operations
			metrics.Duration = time.Since(marker.StartTime)
			active = append(active, metrics)
		}
	}
	return active
}

// GetAlerts returns the retained performance alerts
func (t *Tracker) GetAlerts() []*PerformanceAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()

	alerts := make([]*PerformanceAlert, len(t.alerts))
	copy(alerts, t.alerts)
	return alerts
}

// TakeSnapshot creates a performance snapshot
func (t *Tracker) TakeSnapshot() *PerformanceSnapshot {
	metrics := t.GetRecentMetrics(time.Minute * 5)
	activeOps := t.GetActiveOperations()

	snapshot := &PerformanceSnapshot{
		Timestamp:           time.Now(),
		ActiveOperations:    len(activeOps),
		CompletedOperations: len(metrics),
		OverallHealth:       t.calculateHealth(metrics, activeOps),
	}

	// Categorize metrics by operation type
	snapshot.Capture = t.extractCaptureMetrics(metrics)
	snapshot.Sync = t.extractSyncMetrics(metrics)
	snapshot.Report = t.extractReportMetrics(metrics)

	t.mu.Lock()
	t.snapshots = append(t.snapshots, snapshot)

	// Maintain max snapshots limit
	if len(t.snapshots) > t.config.MaxSnapshots {
		t.snapshots = t.snapshots[len(t.snapshots)-t.config.MaxSnapshots:]
	}
	t.mu.Unlock()

	return snapshot
}

// calculateHealth determines overall system health based on recent metrics
func (t *Tracker) calculateHealth(metrics, activeOps []Marker) HealthStatus {
	if len(metrics) == 0 && len(activeOps) == 0 {
		return HealthUnknown
	}

	criticalIssues := 0
	warningIssues := 0
	totalOps := len(metrics) + len(activeOps)

	allOps := append(metrics, activeOps...)

	for _, op := range allOps {
		duration := op.Duration
		if !op.Completed {
			duration = time.Since(op.StartTime)
		}

		if duration > t.thresholds.CriticalResponseThreshold || !op.Success {
			criticalIssues++
		} else if duration > t.thresholds.VerySlowResponseThreshold {
			warningIssues++
		}
	}

	criticalRatio := float64(criticalIssues) / float64(totalOps)
	warningRatio := float64(warningIssues) / float64(totalOps)

	if criticalRatio > 0.1 { // More than 10% critical issues
		return HealthUnhealthy
	} else if criticalRatio > 0.05 || warningRatio > 0.2 { // More than 5% critical or 20% warning
		return HealthDegraded
	}

	return HealthHealthy
}

// extractCaptureMetrics filters metrics for capture operations
func (t *Tracker) extractCaptureMetrics(metrics []Marker) *CapturePerformanceTracker {
	tracker := &CapturePerformanceTracker{}

	for _, metric := range metrics {
		switch {
		case strings.Contains(metric.Operation, "geofence"):
			if tracker.GeofenceEvaluation == nil || metric.EndTime.After(tracker.GeofenceEvaluation.EndTime) {
				m := metric
				tracker.GeofenceEvaluation = &m
			}
		case strings.Contains(metric.Operation, "check_in"):
			if tracker.CheckIn == nil || metric.EndTime.After(tracker.CheckIn.EndTime) {
				m := metric
				tracker.CheckIn = &m
			}
		case strings.Contains(metric.Operation, "check_out"):
			if tracker.CheckOut == nil || metric.EndTime.After(tracker.CheckOut.EndTime) {
				m := metric
				tracker.CheckOut = &m
			}
		case strings.Contains(metric.Operation, "sweep"):
			if tracker.SessionSweep == nil || metric.EndTime.After(tracker.SessionSweep.EndTime) {
				m := metric
				tracker.SessionSweep = &m
			}
		case strings.Contains(metric.Operation, "jwt"):
			if tracker.JWTGeneration == nil || metric.EndTime.After(tracker.JWTGeneration.EndTime) {
				m := metric
				tracker.JWTGeneration = &m
			}
		}
	}

	return tracker
}

// extractSyncMetrics filters metrics for queue and reconciler operations
func (t *Tracker) extractSyncMetrics(metrics []Marker) *SyncPerformanceTracker {
	tracker := &SyncPerformanceTracker{}

	for _, metric := range metrics {
		switch {
		case strings.Contains(metric.Operation, "append"):
			if tracker.QueueAppend == nil || metric.EndTime.After(tracker.QueueAppend.EndTime) {
				m := metric
				tracker.QueueAppend = &m
			}
		case strings.Contains(metric.Operation, "drain"):
			if tracker.DrainCycle == nil || metric.EndTime.After(tracker.DrainCycle.EndTime) {
				m := metric
				tracker.DrainCycle = &m
			}
		case strings.Contains(metric.Operation, "remote_put"):
			if tracker.RemotePut == nil || metric.EndTime.After(tracker.RemotePut.EndTime) {
				m := metric
				tracker.RemotePut = &m
			}
		case strings.Contains(metric.Operation, "conflict"):
			if tracker.ConflictResolution == nil || metric.EndTime.After(tracker.ConflictResolution.EndTime) {
				m := metric
				tracker.ConflictResolution = &m
			}
		case strings.Contains(metric.Operation, "recovery"):
			if tracker.StartupRecovery == nil || metric.EndTime.After(tracker.StartupRecovery.EndTime) {
				m := metric
				tracker.StartupRecovery = &m
			}
		}
	}

	return tracker
}

// extractReportMetrics filters metrics for report projection operations
func (t *Tracker) extractReportMetrics(metrics []Marker) *ReportPerformanceTracker {
	tracker := &ReportPerformanceTracker{}

	for _, metric := range metrics {
		switch {
		case strings.Contains(metric.Operation, "report_list"):
			if tracker.RecordListing == nil || metric.EndTime.After(tracker.RecordListing.EndTime) {
				m := metric
				tracker.RecordListing = &m
			}
		case strings.Contains(metric.Operation, "report_summary"):
			if tracker.SummaryAggregation == nil || metric.EndTime.After(tracker.SummaryAggregation.EndTime) {
				m := metric
				tracker.SummaryAggregation = &m
			}
		}
	}

	return tracker
}

// Cleanup removes old markers and snapshots to prevent memory leaks
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Clean up old completed markers
	cutoff := time.Now().Add(-time.Hour) // Keep last hour of markers
	for id, marker := range t.markers {
		if marker.Completed && marker.EndTime.Before(cutoff) {
			delete(t.markers, id)
		}
	}

	// Maintain max markers limit
	if len(t.markers) > t.config.MaxMarkers {
		count := 0
		for id := range t.markers {
			if count > t.config.MaxMarkers/2 {
				delete(t.markers, id)
			}
			count++
		}
	}
}

// GetOverallStats returns overall tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	activeCount := 0
	completedCount := 0

	for _, marker := range t.markers {
		if marker.Completed {
			completedCount++
		} else {
			activeCount++
		}
	}

	return map[string]any{
		"trackerUptime":       time.Since(t.started),
		"totalMarkers":        len(t.markers),
		"activeOperations":    activeCount,
		"completedOperations": completedCount,
		"totalSnapshots":      len(t.snapshots),
		"totalAlerts":         len(t.alerts),
		"memoryUsageMB":       memStats.Alloc / (1024 * 1024),
		"systemMemoryMB":      memStats.Sys / (1024 * 1024),
	}
}
