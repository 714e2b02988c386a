package pool

import (
	"context"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/events"
	"fleetd/pkg/logger"
)

// slot is the handle for one worker goroutine pair
type slot struct {
	workerID string
	cancel   context.CancelFunc
}

// runSlot is the worker loop: dequeue, execute, report. The worker talks to
// the rest of the system only through the queue and the event bus.
func (p *Pool) runSlot(ctx context.Context, workerID string) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, p.dequeueTimeout)
		if err != nil {
			// context ended while waiting
			return
		}
		if task == nil {
			continue
		}

		p.executeTask(ctx, workerID, task)
	}
}

// executeTask runs one attempt and publishes its lifecycle events
func (p *Pool) executeTask(ctx context.Context, workerID string, task *model.Task) {
	waitMs := time.Since(task.EnqueuedAt).Milliseconds()
	task.MarkAssigned(workerID)
	p.markWorking(workerID, task.ID)
	p.bus.Publish(ctx, events.NewEnvelope(task.ID, events.TaskAssigned{
		TaskID:     task.ID,
		WorkerID:   workerID,
		WaitMs:     waitMs,
		RetryCount: task.RetryCount,
	}))

	task.MarkStarted()
	p.bus.Publish(ctx, events.NewEnvelope(task.ID, events.TaskStarted{
		TaskID:   task.ID,
		WorkerID: workerID,
	}))

	start := time.Now()
	result := p.executor.Execute(ctx, task)
	if result == nil {
		result = &model.ExecutionResult{Status: model.ResultFailed, Error: "executor returned no result"}
	}
	durationMs := result.DurationMs
	if durationMs <= 0 {
		durationMs = time.Since(start).Milliseconds()
	}

	if result.Status == model.ResultCompleted {
		retried := task.RetryCount > 0
		task.MarkCompleted()
		p.markIdle(workerID, retried)
		p.bus.Publish(ctx, events.NewEnvelope(task.ID, events.TaskCompleted{
			TaskID:     task.ID,
			WorkerID:   workerID,
			DurationMs: durationMs,
			RetryCount: task.RetryCount,
		}))
		return
	}

	// leave the task IN_PROGRESS; the control plane decides retry vs escalate
	task.LastError = result.Error
	p.markError(workerID)
	logger.WarnCtx(ctx, "task attempt failed, task_id: %s, worker_id: %s, error: %s",
		task.ID, workerID, result.Error)
	p.bus.Publish(ctx, events.NewEnvelope(task.ID, events.TaskFailed{
		TaskID:     task.ID,
		WorkerID:   workerID,
		DurationMs: durationMs,
		Error:      result.Error,
		RetryCount: task.RetryCount,
		Fixable:    result.Fixable,
	}))
}

// runHeartbeat signals liveness for one worker on a fixed interval
func (p *Pool) runHeartbeat(ctx context.Context, workerID string) {
	defer p.wg.Done()

	interval := time.Duration(p.cfg.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Heartbeat(ctx, workerID); err != nil {
				// worker was removed, the slot is on its way down
				return
			}
		}
	}
}
