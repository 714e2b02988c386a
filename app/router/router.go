package router

import (
	"fleetd/app/handler"
	"fleetd/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	taskHandler       *handler.TaskHandler
	workerHandler     *handler.WorkerHandler
	monitoringHandler *handler.MonitoringHandler
	eventsHandler     *handler.EventsHandler
}

// NewRouter creates a new Router
func NewRouter(taskHandler *handler.TaskHandler, workerHandler *handler.WorkerHandler, monitoringHandler *handler.MonitoringHandler, eventsHandler *handler.EventsHandler) *Router {
	return &Router{
		taskHandler:       taskHandler,
		workerHandler:     workerHandler,
		monitoringHandler: monitoringHandler,
		eventsHandler:     eventsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// V1 API - task and fleet management interface
	v1 := engine.Group("/v1")
	{
		// Read-only surface, polled by dashboards
		v1.GET("/status", r.monitoringHandler.GetStatus)
		v1.GET("/metrics", r.monitoringHandler.GetMetrics)
		v1.GET("/health", r.monitoringHandler.GetHealth)
		v1.GET("/profiles/report", r.monitoringHandler.GetProfileReport)
		v1.GET("/tasks", r.taskHandler.List)
		v1.GET("/tasks/:task_id", r.taskHandler.Status)
		v1.GET("/workers", r.workerHandler.List)

		// Lifecycle event stream for external observers (WebSocket)
		v1.GET("/events", r.eventsHandler.Stream)

		// Mutating routes carry simple token authentication
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			authed.POST("/tasks", r.taskHandler.Submit)
			authed.POST("/tasks/:task_id/cancel", r.taskHandler.Cancel)
			authed.POST("/workers", r.workerHandler.Register)
			authed.DELETE("/workers/:worker_id", r.workerHandler.Deregister)
			authed.POST("/workers/:worker_id/heartbeat", r.workerHandler.Heartbeat)
			authed.POST("/profiles/clear", r.monitoringHandler.ClearProfiles)
		}
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
