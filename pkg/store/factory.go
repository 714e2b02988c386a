package store

import (
	"fmt"

	"fleetd/pkg/config"
	"fleetd/pkg/interfaces"
	memorystore "fleetd/pkg/store/memory"
	"fleetd/pkg/store/mysql"
	redisstore "fleetd/pkg/store/redis"
)

// Stores bundles the task and worker stores with their cleanup
type Stores struct {
	Tasks   interfaces.TaskStore
	Workers interfaces.WorkerStore

	closers []func() error
}

// Close releases any backing connections
func (s *Stores) Close() error {
	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CreateStores creates the store pair selected by configuration.
// "durable" keeps worker records in Redis (ephemeral, TTL-bounded) and
// task records in MySQL, matching their different lifetimes.
func CreateStores(cfg *config.Config, providerType string) (*Stores, error) {
	switch providerType {
	case "memory", "":
		return &Stores{
			Tasks:   memorystore.NewTaskStore(),
			Workers: memorystore.NewWorkerStore(),
		}, nil

	case "redis":
		client, err := redisstore.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tasks:   memorystore.NewTaskStore(),
			Workers: redisstore.NewWorkerStore(client),
			closers: []func() error{client.Close},
		}, nil

	case "mysql":
		ds, err := mysql.NewDatastore(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tasks:   mysql.NewTaskStore(ds),
			Workers: memorystore.NewWorkerStore(),
			closers: []func() error{ds.Close},
		}, nil

	case "durable":
		client, err := redisstore.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		ds, err := mysql.NewDatastore(cfg.MySQL)
		if err != nil {
			client.Close()
			return nil, err
		}
		return &Stores{
			Tasks:   mysql.NewTaskStore(ds),
			Workers: redisstore.NewWorkerStore(client),
			closers: []func() error{ds.Close, client.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store provider type: %s", providerType)
	}
}
