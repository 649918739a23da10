package handlers

import (
	"errors"
	"net/http"

	"github.com/attendly/attendly-go/internal/application/services"
	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	persistence "github.com/attendly/attendly-go/internal/infrastructure/persistence/attendance"
	"github.com/gin-gonic/gin"
)

// SyncHandlers exposes queue inspection and drain control. All routes are
// admin-only except queue status, which the capture client polls.
type SyncHandlers struct {
	syncService  *services.SyncService
	conflictRepo *persistence.ConflictRepository
	logger       *logging.ChanneledLogger
}

// NewSyncHandlers creates sync handlers
func NewSyncHandlers(syncService *services.SyncService, conflictRepo *persistence.ConflictRepository, logger *logging.ChanneledLogger) *SyncHandlers {
	return &SyncHandlers{syncService: syncService, conflictRepo: conflictRepo, logger: logger}
}

// GetQueueStatus handles GET /api/v1/queue/status
func (h *SyncHandlers) GetQueueStatus(c *gin.Context) {
	status, err := h.syncService.QueueStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetSyncStatus handles GET /api/v1/sync/status
func (h *SyncHandlers) GetSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncService.SyncStatus())
}

// GetDeadLetters handles GET /api/v1/queue/dead-letters
func (h *SyncHandlers) GetDeadLetters(c *gin.Context) {
	entries, err := h.syncService.DeadLetters()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*attendance.QueueEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"deadLetters": entries, "count": len(entries)})
}

// PostRequeue handles POST /api/v1/queue/dead-letters/:recordId/requeue
func (h *SyncHandlers) PostRequeue(c *gin.Context) {
	recordID := c.Param("recordId")
	if err := h.syncService.Requeue(recordID); err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recordId": recordID, "state": string(attendance.SyncPending)})
}

// PostDrain handles POST /api/v1/sync/drain. The drain request is coalesced
// with any cycle already scheduled.
func (h *SyncHandlers) PostDrain(c *gin.Context) {
	h.syncService.TriggerDrain()
	c.JSON(http.StatusAccepted, gin.H{"triggered": true})
}

// GetConflicts handles GET /api/v1/sync/conflicts
func (h *SyncHandlers) GetConflicts(c *gin.Context) {
	entries, err := h.conflictRepo.List(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*attendance.ConflictLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": entries, "count": len(entries)})
}
