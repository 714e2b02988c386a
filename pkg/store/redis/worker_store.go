package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"

	"github.com/go-redis/redis/v8"
)

const (
	workerKeyPrefix        = "worker:"             // Worker record data
	workerSetKeyActive     = "workers:active"      // Active worker set
	workerCapabilityPrefix = "workers:capability:" // Worker set by capability tag
	workerDataTTL          = 5 * time.Minute       // Worker data TTL
)

// WorkerStore keeps worker records in Redis. Records carry a TTL so a
// crashed control plane leaves no stale fleet state behind; live workers
// are re-saved on every heartbeat.
type WorkerStore struct {
	redis *redis.Client
}

// NewWorkerStore creates the redis-backed worker store
func NewWorkerStore(client *RedisClient) *WorkerStore {
	return &WorkerStore{redis: client.GetClient()}
}

// Put saves a worker record and its set memberships
func (s *WorkerStore) Put(ctx context.Context, worker *model.Worker) error {
	key := workerKeyPrefix + worker.ID
	data, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker: %w", err)
	}

	capabilitySetKey := workerCapabilityPrefix + worker.Capability

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, key, data, workerDataTTL)
	pipe.SAdd(ctx, workerSetKeyActive, worker.ID)
	pipe.Expire(ctx, workerSetKeyActive, workerDataTTL*2)
	pipe.SAdd(ctx, capabilitySetKey, worker.ID)
	pipe.Expire(ctx, capabilitySetKey, workerDataTTL*2)

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// Get retrieves a worker record
func (s *WorkerStore) Get(ctx context.Context, workerID string) (*model.Worker, error) {
	key := workerKeyPrefix + workerID
	data, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}

	var worker model.Worker
	if err := json.Unmarshal([]byte(data), &worker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker: %w", err)
	}
	return &worker, nil
}

// Update applies named field changes with a read-modify-write.
// Heartbeat updates are last-writer-wins per worker id.
func (s *WorkerStore) Update(ctx context.Context, workerID string, fields map[string]interface{}) error {
	worker, err := s.Get(ctx, workerID)
	if err != nil {
		return err
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
	return s.Put(ctx, worker)
}

// Query returns worker records matching the filter
func (s *WorkerStore) Query(ctx context.Context, filter interfaces.WorkerFilter) ([]*model.Worker, error) {
	setKey := workerSetKeyActive
	if filter.Capability != "" {
		setKey = workerCapabilityPrefix + filter.Capability
	}

	workerIDs, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker list: %w", err)
	}
	if len(workerIDs) == 0 {
		return []*model.Worker{}, nil
	}

	// Use pipeline to batch fetch all workers in one round-trip
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(workerIDs))
	for _, workerID := range workerIDs {
		cmds = append(cmds, pipe.Get(ctx, workerKeyPrefix+workerID))
	}
	if _, err = pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch workers: %w", err)
	}

	workers := make([]*model.Worker, 0, len(workerIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Worker expired, skip
			continue
		}
		var worker model.Worker
		if err := json.Unmarshal([]byte(data), &worker); err != nil {
			continue
		}
		if filter.Status != "" && worker.Status != filter.Status {
			continue
		}
		workers = append(workers, &worker)
	}
	return workers, nil
}

// Delete removes a worker record and its set memberships
func (s *WorkerStore) Delete(ctx context.Context, workerID string) error {
	worker, err := s.Get(ctx, workerID)
	if err != nil {
		// record already gone, still clean the active set
		s.redis.SRem(ctx, workerSetKeyActive, workerID)
		return nil
	}

	pipe := s.redis.Pipeline()
	pipe.Del(ctx, workerKeyPrefix+workerID)
	pipe.SRem(ctx, workerSetKeyActive, workerID)
	pipe.SRem(ctx, workerCapabilityPrefix+worker.Capability, workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	return nil
}
