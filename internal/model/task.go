package model

import (
	"encoding/json"
	"time"
)

// TaskPriority task priority class. Higher values are dequeued first.
type TaskPriority int

const (
	PriorityLow    TaskPriority = 0
	PriorityNormal TaskPriority = 1
	PriorityHigh   TaskPriority = 2
)

// String returns the priority name
func (p TaskPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// ParsePriority parses a priority name, defaulting to normal
func ParsePriority(s string) TaskPriority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// TaskPhase task lifecycle phase
type TaskPhase string

const (
	PhaseQueued     TaskPhase = "QUEUED"      // Waiting in the priority queue
	PhaseAssigned   TaskPhase = "ASSIGNED"    // Claimed by a worker
	PhaseInProgress TaskPhase = "IN_PROGRESS" // Being executed
	PhaseCompleted  TaskPhase = "COMPLETED"   // Terminal: succeeded
	PhaseFailed     TaskPhase = "FAILED"      // Terminal: marked failed by an external writer; the automatic loop escalates instead
	PhaseEscalated  TaskPhase = "ESCALATED"   // Terminal: routed out of the automatic loop
)

// IsTerminal reports whether the phase is terminal
func (p TaskPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseEscalated
}

// Task is a unit of workflow work moving through the control plane.
// Phase transitions are monotonic along QUEUED -> ASSIGNED -> IN_PROGRESS ->
// terminal, except retries which move IN_PROGRESS back to ASSIGNED.
type Task struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"` // executor-facing task type
	Priority    TaskPriority           `json:"priority"`
	Phase       TaskPhase              `json:"phase"`
	Input       map[string]interface{} `json:"input,omitempty"`
	WorkerID    string                 `json:"worker_id,omitempty"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	LastError   string                 `json:"last_error,omitempty"`
}

// MarkAssigned records a worker claiming the task
func (t *Task) MarkAssigned(workerID string) {
	t.Phase = PhaseAssigned
	t.WorkerID = workerID
}

// MarkStarted records execution beginning
func (t *Task) MarkStarted() {
	now := time.Now()
	t.Phase = PhaseInProgress
	t.StartedAt = &now
}

// MarkCompleted records a successful terminal outcome
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Phase = PhaseCompleted
	t.CompletedAt = &now
}

// MarkEscalated records the task leaving the automatic retry loop
func (t *Task) MarkEscalated(reason string) {
	now := time.Now()
	t.Phase = PhaseEscalated
	t.CompletedAt = &now
	t.LastError = reason
}

// MarkRetried moves a failed in-progress task back to ASSIGNED for requeue.
// The caller is responsible for not exceeding the retry budget. EnqueuedAt
// is cleared so the requeue stamps a fresh one; the wait-time sample for the
// next attempt must not include the failed execution.
func (t *Task) MarkRetried(errMsg string) {
	t.Phase = PhaseAssigned
	t.WorkerID = ""
	t.StartedAt = nil
	t.EnqueuedAt = time.Time{}
	t.RetryCount++
	t.LastError = errMsg
}

// ToJSON converts task to JSON bytes
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON converts JSON bytes to task
func (t *Task) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

// SubmitRequest submit task request
type SubmitRequest struct {
	Kind     string                 `json:"kind" binding:"required"`
	Input    map[string]interface{} `json:"input"`
	Priority string                 `json:"priority,omitempty"` // high, normal, low
}

// SubmitResponse submit task response
type SubmitResponse struct {
	ID    string    `json:"id"`
	Phase TaskPhase `json:"phase"`
}

// ExecutionResult is the outcome an executor reports for one attempt.
type ExecutionResult struct {
	Status     string `json:"status"` // completed, failed
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	// Fixable marks the failure as something a retry can plausibly fix.
	// Non-fixable failures escalate immediately.
	Fixable bool `json:"fixable,omitempty"`
}

const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)
