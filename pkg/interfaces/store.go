package interfaces

import (
	"context"

	"fleetd/internal/model"
)

// TaskFilter narrows task queries
type TaskFilter struct {
	Phase    model.TaskPhase
	WorkerID string
	Limit    int
}

// WorkerFilter narrows worker queries
type WorkerFilter struct {
	Status     model.WorkerStatus
	Capability string
}

// TaskStore is the narrow interface to the durable task record store.
// The core treats the store as crash-durable; replication and transactions
// are the store's problem, not the control plane's.
type TaskStore interface {
	Put(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Query(ctx context.Context, filter TaskFilter) ([]*model.Task, error)
}

// WorkerStore is the narrow interface to the durable worker record store
type WorkerStore interface {
	Put(ctx context.Context, worker *model.Worker) error
	Get(ctx context.Context, id string) (*model.Worker, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Query(ctx context.Context, filter WorkerFilter) ([]*model.Worker, error)
	Delete(ctx context.Context, id string) error
}
