package redis

import (
	"context"
	"fmt"
	"time"

	"fleetd/pkg/config"

	"github.com/go-redis/redis/v8"
)

const connectTimeout = 5 * time.Second

// RedisClient owns the shared connection the worker store runs on
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and verifies the backend is reachable.
// Worker records are ephemeral, so a fleet should fail fast at startup
// rather than discover a dead backend on its first heartbeat write.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
