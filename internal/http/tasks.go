package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/listenwise/internal/tasks"
)

// TaskStatusReader looks up a queued task.
type TaskStatusReader interface {
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// TasksController reports background task status.
type TasksController struct {
	client TaskStatusReader
}

// NewTasksController creates a new TasksController.
func NewTasksController(client TaskStatusReader) *TasksController {
	return &TasksController{client: client}
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		jsonError(c, http.StatusBadRequest, "task ID is required")
		return
	}

	status, err := tc.client.Status(c.Request.Context(), taskID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if status == backlite.TaskStatusNotFound {
		jsonError(c, http.StatusNotFound, "task not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": tasks.StatusString(status),
	})
}
