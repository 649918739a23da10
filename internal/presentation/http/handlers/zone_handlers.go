package handlers

import (
	"errors"
	"net/http"

	"github.com/attendly/attendly-go/internal/application/services"
	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// ZoneHandlers serves the zone registry endpoints.
type ZoneHandlers struct {
	zoneService *services.ZoneService
	logger      *logging.ChanneledLogger
}

// NewZoneHandlers creates zone handlers
func NewZoneHandlers(zoneService *services.ZoneService, logger *logging.ChanneledLogger) *ZoneHandlers {
	return &ZoneHandlers{zoneService: zoneService, logger: logger}
}

// GetZones handles GET /api/v1/zones
func (h *ZoneHandlers) GetZones(c *gin.Context) {
	zones, err := h.zoneService.GetActiveZones()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if zones == nil {
		zones = []*attendance.Zone{}
	}
	c.JSON(http.StatusOK, zones)
}

// GetZone handles GET /api/v1/zones/:id
func (h *ZoneHandlers) GetZone(c *gin.Context) {
	zone, err := h.zoneService.GetZone(c.Param("id"))
	if err != nil {
		if errors.Is(err, attendance.ErrZoneNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, zone)
}

// PostZone handles POST /api/v1/zones
func (h *ZoneHandlers) PostZone(c *gin.Context) {
	var input services.ZoneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	zone, err := h.zoneService.CreateZone(input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, zone)
}

// PutZone handles PUT /api/v1/zones/:id. The edit lands under a fresh zone id
// and the old id is marked superseded.
func (h *ZoneHandlers) PutZone(c *gin.Context) {
	var input services.ZoneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	zone, err := h.zoneService.UpdateZone(c.Param("id"), input)
	if err != nil {
		if errors.Is(err, attendance.ErrZoneNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, zone)
}
