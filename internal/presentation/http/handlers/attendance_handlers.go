package handlers

import (
	"errors"
	"net/http"

	"github.com/attendly/attendly-go/internal/application/services"
	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
	"github.com/attendly/attendly-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// AttendanceHandlers serves check-in, check-out and current-session requests.
type AttendanceHandlers struct {
	attendanceService *services.AttendanceService
	logger            *logging.ChanneledLogger
	perfTracker       *performance.Tracker
}

// NewAttendanceHandlers creates attendance handlers
func NewAttendanceHandlers(attendanceService *services.AttendanceService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AttendanceHandlers {
	return &AttendanceHandlers{
		attendanceService: attendanceService,
		logger:            logger,
		perfTracker:       perfTracker,
	}
}

// CheckInRequest is the check-in payload.
type CheckInRequest struct {
	ZoneID string                    `json:"zoneId" binding:"required"`
	Sample attendance.LocationSample `json:"sample" binding:"required"`
}

// CheckOutRequest is the check-out payload.
type CheckOutRequest struct {
	Sample attendance.LocationSample `json:"sample" binding:"required"`
}

// PostCheckIn handles POST /api/v1/attendance/check-in
func (h *AttendanceHandlers) PostCheckIn(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.attendanceService.CheckIn(userID, req.ZoneID, req.Sample)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// PostCheckOut handles POST /api/v1/attendance/check-out
func (h *AttendanceHandlers) PostCheckOut(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, record, err := h.attendanceService.CheckOut(userID, req.Sample)
	if err != nil {
		respondAttendanceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
		"record":  record,
	})
}

// GetSession handles GET /api/v1/attendance/session
func (h *AttendanceHandlers) GetSession(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	session, err := h.attendanceService.CurrentSession(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"open": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"open": true, "session": session})
}

// respondAttendanceError maps domain errors onto HTTP responses. Ambiguous
// verdicts carry retryable so clients know a fresh sample may succeed.
func respondAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrZoneNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "zone_not_found"})
	case errors.Is(err, attendance.ErrSessionOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "session_open"})
	case errors.Is(err, attendance.ErrNoOpenSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "no_open_session"})
	case errors.Is(err, attendance.ErrOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "out_of_range", "retryable": false})
	case errors.Is(err, attendance.ErrLocationUncertain):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "location_uncertain", "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
