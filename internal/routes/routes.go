package routes

import (
	authapi "agenthub/api/v1/auth"
	"agenthub/api/v1/events"
	"agenthub/api/v1/middleware"
	"agenthub/api/v1/pairing"
	"agenthub/api/v1/tasks"
	"agenthub/api/v1/workers"
	"agenthub/internal/config"
	"agenthub/internal/coordinator"
	"agenthub/internal/eventlog"
	"agenthub/internal/gateway"
	"agenthub/internal/httpx"
	"agenthub/internal/registry"
	"agenthub/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the components the trusted API surfaces
type Deps struct {
	DB          *gorm.DB
	Config      *config.Config
	Store       store.Store
	Registry    *registry.Registry
	Coordinator *coordinator.Coordinator
	Gateway     *gateway.Gateway
	Events      *eventlog.Log
}

// RegisterRoutes wires the trusted API and the worker websocket endpoint
func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		httpx.OK(c, gin.H{"status": "ok"})
	})

	// workers connect here with a long-lived websocket
	r.GET("/ws", func(c *gin.Context) {
		deps.Registry.ServeWS(c.Writer, c.Request)
	})

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", authapi.LoginHandler(deps.DB, deps.Config))

		authed := api.Group("", middleware.AuthRequired())
		{
			taskHandler := tasks.NewHandler(deps.Coordinator)
			taskGroup := authed.Group("/tasks")
			{
				taskGroup.GET("", taskHandler.List)
				taskGroup.POST("", taskHandler.Create)
				taskGroup.GET("/:id", taskHandler.Get)
				taskGroup.GET("/:id/stream", taskHandler.Stream)
				taskGroup.POST("/:id/messages", taskHandler.SendMessage)
				taskGroup.POST("/:id/stop", taskHandler.Stop)
				taskGroup.POST("/:id/archive", taskHandler.Archive)
				taskGroup.POST("/:id/restore", taskHandler.Restore)
				taskGroup.DELETE("/:id", taskHandler.Delete)
			}

			workerHandler := workers.NewHandler(deps.Registry, deps.Store)
			workerGroup := authed.Group("/workers")
			{
				workerGroup.GET("", workerHandler.List)
				workerGroup.GET("/:id/status", workerHandler.Status)
				workerGroup.GET("/:id/jobs", workerHandler.Jobs)
				workerGroup.POST("/:id/jobs", workerHandler.PushJob)
				workerGroup.POST("/:id/config", workerHandler.PushConfig)
				workerGroup.POST("/:id/skills", workerHandler.ProvisionSkill)
			}

			authed.GET("/jobs", workerHandler.AllJobs)

			eventHandler := events.NewHandler(deps.Events)
			authed.GET("/events", eventHandler.List)

			pairingHandler := pairing.NewHandler(deps.Gateway)
			authed.POST("/pairing/codes", pairingHandler.CreateCode)
		}
	}
}
