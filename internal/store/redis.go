package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"collegeattend/internal/config"
	"collegeattend/internal/queue"
)

// Redis holds the connection shared by the event queue and health checks.
type Redis struct {
	Client *redis.Client
}

// NewRedis accepts either host:port or a redis:// URL. No connection is made until first use.
func NewRedis(addr string) (*Redis, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 1 * time.Second
	opts.WriteTimeout = 1 * time.Second
	return &Redis{Client: redis.NewClient(opts)}, nil
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// OpenQueue returns the event queue named by cfg.QueueBackend. r may be nil for the memory queue.
func OpenQueue(cfg config.App, r *Redis) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewInMemory(256), nil
	case "redis":
		if r == nil {
			return nil, fmt.Errorf("redis queue needs a redis connection")
		}
		return queue.NewRedisQueue(r.Client, cfg.QueueKey), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
}
