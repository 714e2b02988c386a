package handler

import (
	"errors"
	"net/http"

	"fleetd/internal/controlplane"
	"fleetd/internal/model"
	"fleetd/pkg/interfaces"

	"github.com/gin-gonic/gin"
)

// TaskHandler serves task submission and lifecycle queries
type TaskHandler struct {
	cp *controlplane.ControlPlane
}

// NewTaskHandler creates a task handler
func NewTaskHandler(cp *controlplane.ControlPlane) *TaskHandler {
	return &TaskHandler{cp: cp}
}

// Submit handles POST /v1/tasks
func (h *TaskHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.cp.SubmitTask(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, interfaces.ErrQueueFull) {
			// caller must back off and retry later
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "queue full"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SubmitResponse{ID: task.ID, Phase: task.Phase})
}

// Status handles GET /v1/tasks/:task_id
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")

	task, err := h.cp.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// Cancel handles POST /v1/tasks/:task_id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	taskID := c.Param("task_id")

	if err := h.cp.CancelTask(c.Request.Context(), taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": taskID, "cancelled": true})
}

// List handles GET /v1/tasks
func (h *TaskHandler) List(c *gin.Context) {
	filter := interfaces.TaskFilter{
		Phase:    model.TaskPhase(c.Query("phase")),
		WorkerID: c.Query("worker_id"),
	}

	tasks, err := h.cp.QueryTasks(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}
