package queue

import (
	"fmt"

	"fleetd/pkg/config"
	"fleetd/pkg/interfaces"
	asynqqueue "fleetd/pkg/queue/asynq"
	"fleetd/pkg/queue/memory"
)

// CreateQueueProvider creates the queue provider selected by configuration.
// The in-memory provider is the default and the one carrying the exact
// priority/FIFO ordering guarantees; asynq trades those for a shared broker.
func CreateQueueProvider(cfg *config.Config, providerType string) (interfaces.QueueProvider, error) {
	switch providerType {
	case "memory", "":
		return memory.NewQueue(
			memory.WithCapacity(cfg.Queue.Capacity),
			memory.WithWaitWindow(cfg.Queue.WaitWindowSize),
		), nil
	case "asynq":
		return asynqqueue.NewProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported queue provider type: %s", providerType)
	}
}
