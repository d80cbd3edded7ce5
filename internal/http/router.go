// Package http serves the operational endpoints of the serve process:
// health, background task status, per-owner connection status and a
// read-only view of each owner's synced library.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/listenwise/internal/database"
)

// RouterConfig holds the dependencies of NewRouter. Nil stores disable the
// routes that need them.
type RouterConfig struct {
	Database    *database.Database
	TaskQueue   Pinger
	TaskStatus  TaskStatusReader
	OwnerStatus OwnerStatusReader
	Library     LibraryReader
	Version     string
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger())
	router.Use(gin.Recovery())

	checks := map[string]Pinger{"database": DatabasePinger(cfg.Database)}
	if cfg.TaskQueue != nil {
		checks["task_queue"] = cfg.TaskQueue
	}
	router.GET("/health", NewHealthController(checks, cfg.Version).Status)

	api := router.Group("/api")
	if cfg.TaskStatus != nil {
		api.GET("/tasks/:id", NewTasksController(cfg.TaskStatus).GetTaskStatus)
	}
	if cfg.OwnerStatus != nil {
		owners := NewOwnersController(cfg.OwnerStatus, cfg.Library)
		api.GET("/owners/:id/status", owners.GetStatus)
		if cfg.Library != nil {
			api.GET("/owners/:id/library", owners.ListLibrary)
			api.GET("/owners/:id/books/:asin", owners.GetBook)
		}
	}

	return router
}
