package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/attendly/attendly-go/internal/application/container"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// OpsHandlers serves operational endpoints: health, performance metrics and
// live log streaming for the ops dashboard.
type OpsHandlers struct {
	container *container.Container
}

// NewOpsHandlers creates ops handlers
func NewOpsHandlers(container *container.Container) *OpsHandlers {
	return &OpsHandlers{container: container}
}

// GetHealth handles GET /api/v1/health
func (h *OpsHandlers) GetHealth(c *gin.Context) {
	queueStatus, err := h.container.Queue.Status()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}

	syncStatus := h.container.Reconciler.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(container.StartedAt()).String(),
		"queue":     queueStatus,
		"sync":      syncStatus,
		"timestamp": time.Now().UTC(),
	})
}

// GetMetrics handles GET /api/v1/ops/metrics
func (h *OpsHandlers) GetMetrics(c *gin.Context) {
	snapshot := h.container.Tracker.TakeSnapshot()
	c.JSON(http.StatusOK, snapshot)
}

// GetAlerts handles GET /api/v1/ops/alerts
func (h *OpsHandlers) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.container.Tracker.GetAlerts()})
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *OpsHandlers) StreamLogs(c *gin.Context) {
	broadcaster := h.container.LogBroadcaster
	if broadcaster == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Log broadcaster not available"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	channelFilter := c.DefaultQuery("channel", "all")
	levelFilter := c.DefaultQuery("level", "INFO")
	var logLevel slog.Level
	switch levelFilter {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	filters := logging.AppliedFilters{
		Channel: logging.Channel(channelFilter),
		Level:   logLevel,
	}

	client := broadcaster.NewClient(filters)
	broadcaster.RegisterClient(client)
	defer broadcaster.UnregisterClient(client)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GetLogLevels handles GET /api/v1/ops/logs/levels
func (h *OpsHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/v1/ops/logs/levels
func (h *OpsHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var level slog.Level
	switch req.Level {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid level: must be DEBUG, INFO, WARN or ERROR"})
		return
	}

	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": req.Level})
}
