package replycache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
)

// Redis backs the reply cache with Redis so multiple instances share it.
// Expiry is delegated to Redis TTLs.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed reply cache and verifies connectivity.
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client}, nil
}

// Get returns the cached reply if present.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	reply, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Warnf("Redis reply cache read failed for %s: %v", key, err)
		return "", false
	}
	return reply, true
}

// Set stores a reply with the given TTL. Failures are logged and ignored:
// the cache is an optimization, not a source of truth.
func (r *Redis) Set(ctx context.Context, key string, reply string, ttl time.Duration) {
	if err := r.client.Set(ctx, key, reply, ttl).Err(); err != nil {
		logger.Warnf("Redis reply cache write failed for %s: %v", key, err)
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
