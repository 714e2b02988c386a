package handler

import (
	"net/http"

	"fleetd/internal/controlplane"

	"github.com/gin-gonic/gin"
)

// WorkerHandler serves worker registration and liveness
type WorkerHandler struct {
	cp *controlplane.ControlPlane
}

// NewWorkerHandler creates a worker handler
func NewWorkerHandler(cp *controlplane.ControlPlane) *WorkerHandler {
	return &WorkerHandler{cp: cp}
}

type registerRequest struct {
	Capability string `json:"capability"`
}

// Register handles POST /v1/workers
func (h *WorkerHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Capability == "" {
		req.Capability = "general"
	}

	worker, err := h.cp.Pool().RegisterWorker(c.Request.Context(), req.Capability)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, worker)
}

// Deregister handles DELETE /v1/workers/:worker_id
func (h *WorkerHandler) Deregister(c *gin.Context) {
	workerID := c.Param("worker_id")

	if err := h.cp.Pool().DeregisterWorker(c.Request.Context(), workerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": workerID, "deregistered": true})
}

// Heartbeat handles POST /v1/workers/:worker_id/heartbeat
func (h *WorkerHandler) Heartbeat(c *gin.Context) {
	workerID := c.Param("worker_id")

	if err := h.cp.Pool().Heartbeat(c.Request.Context(), workerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": workerID, "status": "ok"})
}

// List handles GET /v1/workers
func (h *WorkerHandler) List(c *gin.Context) {
	workers := h.cp.Pool().Workers()
	c.JSON(http.StatusOK, gin.H{"workers": workers, "count": len(workers)})
}
