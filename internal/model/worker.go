package model

import (
	"time"
)

// WorkerStatus worker slot status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "IDLE"    // Registered and waiting for work
	WorkerStatusWorking WorkerStatus = "WORKING" // Executing a task
	WorkerStatusError   WorkerStatus = "ERROR"   // Last attempt failed, still signaling
	WorkerStatusOffline WorkerStatus = "OFFLINE" // Heartbeat exceeded the staleness window
)

// Worker is a fleet member owned by the pool.
// LastHeartbeat is updated exclusively from the worker's own heartbeat
// signal; the pool marks the worker OFFLINE when the heartbeat goes stale.
type Worker struct {
	ID             string       `json:"id"`
	Capability     string       `json:"capability"` // capability tag matched against task kinds
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	LastHeartbeat  time.Time    `json:"last_heartbeat"`
	RegisteredAt   time.Time    `json:"registered_at"`
	TasksCompleted int64        `json:"tasks_completed"`
	TasksFixed     int64        `json:"tasks_fixed"` // completions that needed at least one retry
	Escalations    int64        `json:"escalations"`
}

// HeartbeatAge returns how long ago the worker last signaled
func (w *Worker) HeartbeatAge(now time.Time) time.Duration {
	return now.Sub(w.LastHeartbeat)
}

// QueueMetrics point-in-time queue accounting exposed by the status endpoint
type QueueMetrics struct {
	Depth           int                  `json:"depth"`
	DepthByPriority map[string]int       `json:"depth_by_priority"`
	Capacity        int                  `json:"capacity"`
	AvgWaitMs       float64              `json:"avg_wait_ms"`
	EnqueuedTotal   int64                `json:"enqueued_total"`
	DequeuedTotal   int64                `json:"dequeued_total"`
	RejectedTotal   int64                `json:"rejected_total"` // enqueues refused at capacity
}

// PoolMetrics point-in-time pool accounting exposed by the status endpoint
type PoolMetrics struct {
	Size           int     `json:"size"`
	TargetSize     int     `json:"target_size"`
	MinSize        int     `json:"min_size"`
	MaxSize        int     `json:"max_size"`
	IdleWorkers    int     `json:"idle_workers"`
	ActiveWorkers  int     `json:"active_workers"`
	OfflineWorkers int     `json:"offline_workers"`
	UtilizationPct float64 `json:"utilization_pct"`
	ScaleUpCount   int64   `json:"scale_up_count"`
	ScaleDownCount int64   `json:"scale_down_count"`
	RestartCount   int64   `json:"restart_count"`
}

// Status is the composite queue and pool read returned by the control plane
type Status struct {
	Queue QueueMetrics `json:"queue"`
	Pool  PoolMetrics  `json:"pool"`
}
