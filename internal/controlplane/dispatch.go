package controlplane

import (
	"context"
	"time"

	"fleetd/pkg/events"
	"fleetd/pkg/logger"
)

// dispatch consumes lifecycle events until the run context ends.
// The dispatcher is the single writer for task phase transitions after
// submission: retries, escalations and terminal bookkeeping all happen here.
func (cp *ControlPlane) dispatch(ctx context.Context, ch <-chan events.Envelope, unsubscribe func()) {
	defer close(cp.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			cp.handleEvent(ctx, env)
		}
	}
}

func (cp *ControlPlane) handleEvent(ctx context.Context, env events.Envelope) {
	switch payload := env.Payload.(type) {
	case events.TaskCompleted:
		cp.onTaskCompleted(ctx, payload)
	case events.TaskFailed:
		cp.onTaskFailed(ctx, payload)
	case events.WorkerRegistered:
		cp.onWorkerRegistered(ctx, payload)
	case events.WorkerHeartbeat:
		cp.onWorkerHeartbeat(ctx, payload)
	}
}

func (cp *ControlPlane) onTaskCompleted(ctx context.Context, payload events.TaskCompleted) {
	cp.collector.RecordWorkflow(payload.TaskID, float64(payload.DurationMs), true, "execution", payload.RetryCount)
	cp.escalation.Resolve(payload.TaskID)

	cp.mu.Lock()
	delete(cp.inflight, payload.TaskID)
	cp.mu.Unlock()

	if cp.taskStore != nil {
		err := cp.taskStore.Update(ctx, payload.TaskID, map[string]interface{}{
			"phase":     "COMPLETED",
			"worker_id": payload.WorkerID,
		})
		if err != nil {
			logger.WarnCtx(ctx, "task store update failed, task_id: %s, error: %v", payload.TaskID, err)
		}
	}
}

// onTaskFailed decides retry versus escalation for one failed attempt
func (cp *ControlPlane) onTaskFailed(ctx context.Context, payload events.TaskFailed) {
	session := cp.escalation.RecordFailure(payload.TaskID, payload.WorkerID, payload.Error, payload.Fixable)
	decision := cp.escalation.ShouldEscalate(session)

	cp.mu.Lock()
	task := cp.inflight[payload.TaskID]
	cp.mu.Unlock()

	if !decision.Escalate {
		if task == nil {
			logger.WarnCtx(ctx, "failed task not tracked, dropping retry, task_id: %s", payload.TaskID)
			return
		}
		task.MarkRetried(payload.Error)
		if err := cp.queue.Enqueue(ctx, task); err != nil {
			// requeue refused, the task leaves the loop instead of vanishing
			logger.ErrorCtx(ctx, "requeue failed, escalating, task_id: %s, error: %v", payload.TaskID, err)
			decision.Escalate = true
			decision.Reason = "requeue failed: " + err.Error()
		} else {
			logger.InfoCtx(ctx, "task requeued for retry, task_id: %s, attempt: %d",
				payload.TaskID, session.Attempts)
			if cp.taskStore != nil {
				_ = cp.taskStore.Update(ctx, payload.TaskID, map[string]interface{}{
					"phase":       string(task.Phase),
					"retry_count": task.RetryCount,
					"last_error":  payload.Error,
				})
			}
			return
		}
	}

	cp.collector.RecordWorkflow(payload.TaskID, float64(payload.DurationMs), false, "execution", payload.RetryCount)
	if task != nil {
		task.MarkEscalated(decision.Reason)
	}
	cp.mu.Lock()
	delete(cp.inflight, payload.TaskID)
	cp.mu.Unlock()

	cp.pool.IncrementEscalations(payload.WorkerID)
	cp.escalation.Escalate(ctx, session, decision.Reason)

	if cp.taskStore != nil {
		_ = cp.taskStore.Update(ctx, payload.TaskID, map[string]interface{}{
			"phase":      "ESCALATED",
			"last_error": decision.Reason,
		})
	}
}

func (cp *ControlPlane) onWorkerRegistered(ctx context.Context, payload events.WorkerRegistered) {
	if cp.workerStore == nil {
		return
	}
	worker, ok := cp.pool.GetWorker(payload.WorkerID)
	if !ok {
		return
	}
	if err := cp.workerStore.Put(ctx, worker); err != nil {
		logger.WarnCtx(ctx, "worker store put failed, worker_id: %s, error: %v", payload.WorkerID, err)
	}
}

func (cp *ControlPlane) onWorkerHeartbeat(ctx context.Context, payload events.WorkerHeartbeat) {
	if cp.workerStore == nil {
		return
	}
	err := cp.workerStore.Update(ctx, payload.WorkerID, map[string]interface{}{
		"status":          payload.Status,
		"current_task_id": payload.CurrentTaskID,
		"last_heartbeat":  time.Now(),
	})
	if err != nil {
		logger.DebugCtx(ctx, "worker store update failed, worker_id: %s, error: %v", payload.WorkerID, err)
	}
}
