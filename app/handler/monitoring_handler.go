package handler

import (
	"net/http"

	"fleetd/internal/controlplane"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler serves the read-only dashboard surface: status, metrics
// snapshots, health assessment and profiling reports.
type MonitoringHandler struct {
	cp *controlplane.ControlPlane
}

// NewMonitoringHandler creates a monitoring handler
func NewMonitoringHandler(cp *controlplane.ControlPlane) *MonitoringHandler {
	return &MonitoringHandler{cp: cp}
}

// GetStatus handles GET /v1/status, polled by dashboards
func (h *MonitoringHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cp.GetStatus())
}

// GetMetrics handles GET /v1/metrics
func (h *MonitoringHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.cp.GetMetricsSnapshot())
}

// GetHealth handles GET /v1/health
func (h *MonitoringHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.cp.AssessHealth())
}

// GetProfileReport handles GET /v1/profiles/report
func (h *MonitoringHandler) GetProfileReport(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.cp.Profiler().GetReport()})
}

// ClearProfiles handles POST /v1/profiles/clear
func (h *MonitoringHandler) ClearProfiles(c *gin.Context) {
	h.cp.Profiler().ClearProfiles()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
