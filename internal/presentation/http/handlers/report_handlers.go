package handlers

import (
	"net/http"
	"time"

	"github.com/attendly/attendly-go/internal/application/services"
	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReportHandlers serves committed-record history and summary projections.
type ReportHandlers struct {
	reportService *services.ReportService
	logger        *logging.ChanneledLogger
}

// NewReportHandlers creates report handlers
func NewReportHandlers(reportService *services.ReportService, logger *logging.ChanneledLogger) *ReportHandlers {
	return &ReportHandlers{reportService: reportService, logger: logger}
}

// parseRange reads from/to query params (RFC 3339). Defaults to the trailing
// 30 days when absent.
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: expected RFC 3339 timestamp"})
			return from, to, false
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: expected RFC 3339 timestamp"})
			return from, to, false
		}
		to = parsed
	}
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return from, to, false
	}
	return from, to, true
}

// GetRecords handles GET /api/v1/reports/records
func (h *ReportHandlers) GetRecords(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	records, err := h.reportService.ListRecords(userID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []*attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "from": from, "to": to})
}

// GetSummary handles GET /api/v1/reports/summary
func (h *ReportHandlers) GetSummary(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	summary, err := h.reportService.Summarize(userID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
