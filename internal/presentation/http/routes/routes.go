// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/attendly/attendly-go/internal/application/container"
	"github.com/attendly/attendly-go/internal/presentation/http/handlers"
	"github.com/attendly/attendly-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.Logger, container.Tracker)
	attendanceHandlers := handlers.NewAttendanceHandlers(container.AttendanceService, container.Logger, container.Tracker)
	zoneHandlers := handlers.NewZoneHandlers(container.ZoneService, container.Logger)
	reportHandlers := handlers.NewReportHandlers(container.ReportService, container.Logger)
	syncHandlers := handlers.NewSyncHandlers(container.SyncService, container.Conflicts, container.Logger)
	liveHandlers := handlers.NewLiveHandlers(container.LiveHub, container.Broadcaster, container.Logger)
	opsHandlers := handlers.NewOpsHandlers(container)

	api := r.Group("/api/v1")

	// Public routes
	api.GET("/health", opsHandlers.GetHealth)
	auth := api.Group("/auth")
	{
		auth.POST("/token", authHandlers.PostToken)
		auth.GET("/status", authHandlers.GetStatus)
	}

	// Authenticated capture and report routes
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware())
	{
		att := authed.Group("/attendance")
		{
			att.POST("/check-in", attendanceHandlers.PostCheckIn)
			att.POST("/check-out", attendanceHandlers.PostCheckOut)
			att.GET("/session", attendanceHandlers.GetSession)
		}

		reports := authed.Group("/reports")
		{
			reports.GET("/records", reportHandlers.GetRecords)
			reports.GET("/summary", reportHandlers.GetSummary)
		}

		authed.GET("/zones", zoneHandlers.GetZones)
		authed.GET("/zones/:id", zoneHandlers.GetZone)

		authed.GET("/queue/status", syncHandlers.GetQueueStatus)
		authed.GET("/live/attention", liveHandlers.GetAttentionSSE)
	}

	// Admin routes
	admin := api.Group("")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminOnlyMiddleware())
	{
		admin.POST("/zones", zoneHandlers.PostZone)
		admin.PUT("/zones/:id", zoneHandlers.PutZone)

		adminQueue := admin.Group("/queue")
		{
			adminQueue.GET("/dead-letters", syncHandlers.GetDeadLetters)
			adminQueue.POST("/dead-letters/:recordId/requeue", syncHandlers.PostRequeue)
		}

		adminSync := admin.Group("/sync")
		{
			adminSync.GET("/status", syncHandlers.GetSyncStatus)
			adminSync.POST("/drain", syncHandlers.PostDrain)
			adminSync.GET("/conflicts", syncHandlers.GetConflicts)
		}

		admin.GET("/live/ws", liveHandlers.GetLiveWS)

		ops := admin.Group("/ops")
		{
			ops.GET("/metrics", opsHandlers.GetMetrics)
			ops.GET("/alerts", opsHandlers.GetAlerts)
			ops.GET("/logs/stream", opsHandlers.StreamLogs)
			ops.GET("/logs/levels", opsHandlers.GetLogLevels)
			ops.POST("/logs/levels", opsHandlers.SetLogLevel)
		}
	}

	return r
}
