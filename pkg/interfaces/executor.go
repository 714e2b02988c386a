package interfaces

import (
	"context"

	"fleetd/internal/model"
)

// TaskExecutor performs the actual unit of work. It is supplied by the
// surrounding application; the control plane only routes tasks to it and
// interprets the result.
type TaskExecutor interface {
	Execute(ctx context.Context, task *model.Task) *model.ExecutionResult
}

// ExecutorFunc adapts a function to the TaskExecutor interface
type ExecutorFunc func(ctx context.Context, task *model.Task) *model.ExecutionResult

// Execute implements TaskExecutor
func (f ExecutorFunc) Execute(ctx context.Context, task *model.Task) *model.ExecutionResult {
	return f(ctx, task)
}
