package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"
)

// TaskStore is the in-process task record store, the default when no
// durable backend is configured.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

// NewTaskStore creates an in-memory task store
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*model.Task)}
}

// Put stores a copy of the task record
func (s *TaskStore) Put(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

// Get returns a copy of a task record
func (s *TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	copied := *task
	return &copied, nil
}

// Update applies named field changes to a task record
func (s *TaskStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}

	for key, value := range fields {
		switch key {
		case "phase":
			if v, ok := value.(string); ok {
				task.Phase = model.TaskPhase(v)
			}
		case "worker_id":
			if v, ok := value.(string); ok {
				task.WorkerID = v
			}
		case "retry_count":
			if v, ok := value.(int); ok {
				task.RetryCount = v
			}
		case "last_error":
			if v, ok := value.(string); ok {
				task.LastError = v
			}
		}
	}
	return nil
}

// Query returns copies of task records matching the filter
func (s *TaskStore) Query(ctx context.Context, filter interfaces.TaskFilter) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Task
	for _, task := range s.tasks {
		if filter.Phase != "" && task.Phase != filter.Phase {
			continue
		}
		if filter.WorkerID != "" && task.WorkerID != filter.WorkerID {
			continue
		}
		copied := *task
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// WorkerStore is the in-process worker record store
type WorkerStore struct {
	mu      sync.RWMutex
	workers map[string]*model.Worker
}

// NewWorkerStore creates an in-memory worker store
func NewWorkerStore() *WorkerStore {
	return &WorkerStore{workers: make(map[string]*model.Worker)}
}

// Put stores a copy of the worker record
func (s *WorkerStore) Put(ctx context.Context, worker *model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *worker
	s.workers[worker.ID] = &copied
	return nil
}

// Get returns a copy of a worker record
func (s *WorkerStore) Get(ctx context.Context, id string) (*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	worker, ok := s.workers[id]
	if !ok {
		return nil, fmt.Errorf("worker not found: %s", id)
	}
	copied := *worker
	return &copied, nil
}

// Update applies named field changes to a worker record.
// Heartbeat-driven updates are last-writer-wins per worker id.
func (s *WorkerStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[id]
	if !ok {
		return fmt.Errorf("worker not found: %s", id)
	}

	for key, value := range fields {
		switch key {
		case "status":
			if v, ok := value.(string); ok {
				worker.Status = model.WorkerStatus(v)
			}
		case "current_task_id":
			if v, ok := value.(string); ok {
				worker.CurrentTaskID = v
			}
		case "last_heartbeat":
			if v, ok := value.(time.Time); ok {
				worker.LastHeartbeat = v
			}
		case "tasks_completed":
			if v, ok := value.(int64); ok {
				worker.TasksCompleted = v
			}
		case "escalations":
			if v, ok := value.(int64); ok {
				worker.Escalations = v
			}
		}
	}
	return nil
}

// Query returns copies of worker records matching the filter
func (s *WorkerStore) Query(ctx context.Context, filter interfaces.WorkerFilter) ([]*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Worker
	for _, worker := range s.workers {
		if filter.Status != "" && worker.Status != filter.Status {
			continue
		}
		if filter.Capability != "" && worker.Capability != filter.Capability {
			continue
		}
		copied := *worker
		out = append(out, &copied)
	}
	return out, nil
}

// Delete removes a worker record
func (s *WorkerStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
	return nil
}
