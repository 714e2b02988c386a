package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a lifecycle event type
type Kind string

const (
	KindTaskQueued       Kind = "queued"
	KindTaskAssigned     Kind = "assigned"
	KindTaskStarted      Kind = "started"
	KindTaskCompleted    Kind = "completed"
	KindTaskFailed       Kind = "failed"
	KindEscalationNeeded Kind = "escalation_needed"
	KindWorkerHeartbeat  Kind = "heartbeat"
	KindWorkerRegistered Kind = "registered"
)

// Payload is implemented by one concrete struct per event kind.
// Each payload carries only the fields that event needs; the shared
// Envelope carries id, timestamp and correlation id.
type Payload interface {
	Kind() Kind
}

// Envelope wraps a payload with delivery metadata
type Envelope struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"` // task or worker id the event relates to
	Kind          Kind      `json:"kind"`
	Payload       Payload   `json:"payload"`
}

// NewEnvelope builds an envelope for a payload
func NewEnvelope(correlationID string, payload Payload) Envelope {
	return Envelope{
		ID:            uuid.New().String(),
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		Kind:          payload.Kind(),
		Payload:       payload,
	}
}

// TaskQueued a task entered the priority queue
type TaskQueued struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
	Depth    int    `json:"depth"` // queue depth after the enqueue
}

func (TaskQueued) Kind() Kind { return KindTaskQueued }

// TaskAssigned a worker claimed a task
type TaskAssigned struct {
	TaskID     string `json:"task_id"`
	WorkerID   string `json:"worker_id"`
	WaitMs     int64  `json:"wait_ms"` // time spent in the queue
	RetryCount int    `json:"retry_count"`
}

func (TaskAssigned) Kind() Kind { return KindTaskAssigned }

// TaskStarted execution began
type TaskStarted struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

func (TaskStarted) Kind() Kind { return KindTaskStarted }

// TaskCompleted execution finished successfully
type TaskCompleted struct {
	TaskID     string `json:"task_id"`
	WorkerID   string `json:"worker_id"`
	DurationMs int64  `json:"duration_ms"`
	RetryCount int    `json:"retry_count"`
}

func (TaskCompleted) Kind() Kind { return KindTaskCompleted }

// TaskFailed an execution attempt failed
type TaskFailed struct {
	TaskID     string `json:"task_id"`
	WorkerID   string `json:"worker_id"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
	Fixable    bool   `json:"fixable"`
}

func (TaskFailed) Kind() Kind { return KindTaskFailed }

// EscalationNeeded a task left the automatic retry loop
type EscalationNeeded struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

func (EscalationNeeded) Kind() Kind { return KindEscalationNeeded }

// WorkerHeartbeat a worker signaled liveness
type WorkerHeartbeat struct {
	WorkerID      string `json:"worker_id"`
	Status        string `json:"status"`
	CurrentTaskID string `json:"current_task_id,omitempty"`
}

func (WorkerHeartbeat) Kind() Kind { return KindWorkerHeartbeat }

// WorkerRegistered a worker joined the fleet
type WorkerRegistered struct {
	WorkerID   string `json:"worker_id"`
	Capability string `json:"capability"`
	PoolSize   int    `json:"pool_size"` // pool size after registration
}

func (WorkerRegistered) Kind() Kind { return KindWorkerRegistered }
