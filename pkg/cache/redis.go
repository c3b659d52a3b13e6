package cache

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis backs the stage cache with a shared Redis instance so identical
// requests hitting different processes still share entries.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a Redis-backed cache from a connection URL.
func NewRedis(url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		// A cache failure is only a missed optimization.
		if err != redis.Nil {
			r.logger.Debug("cache get failed", "key", key, "error", err)
		}

		return "", false
	}

	return value, true
}

func (r *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
