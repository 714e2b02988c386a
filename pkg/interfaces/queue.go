package interfaces

import (
	"context"
	"errors"
	"time"

	"fleetd/internal/model"
)

// ErrQueueFull is returned by Enqueue when the configured capacity is
// reached. The caller must back off or reject the submission; tasks are
// never silently dropped.
var ErrQueueFull = errors.New("task queue is full")

// TaskQueue is the priority-ordered holding area for pending work.
// Dequeue order is strict priority (high > normal > low), FIFO within a
// priority class.
type TaskQueue interface {
	// Enqueue adds a task. Fails with ErrQueueFull at capacity.
	Enqueue(ctx context.Context, task *model.Task) error

	// Dequeue suspends the caller until a task is available or the timeout
	// elapses. Returns (nil, nil) on timeout; the error is non-nil only when
	// the context ends.
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Task, error)

	// Depth returns the current total queue depth
	Depth() int

	// Metrics returns point-in-time queue accounting
	Metrics() model.QueueMetrics

	// Close releases queue resources
	Close() error
}

// QueueProvider is implemented by queue backends that can also enqueue into
// an external broker (e.g. asynq) for multi-process deployments.
type QueueProvider interface {
	TaskQueue

	// CancelTask removes a pending task
	CancelTask(ctx context.Context, taskID string) error
}
