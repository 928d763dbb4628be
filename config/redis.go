package config

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens the Redis connection used for the auth cache. A missing
// address or a failed ping returns nil: the application runs without caching.
func ConnectRedis(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		slog.Warn("REDIS_ADDR not configured, caching disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Failed to connect to Redis, caching disabled", "error", err)
		return nil
	}

	slog.Info("Connected to Redis")
	return rdb
}
