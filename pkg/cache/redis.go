package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "paperpulse:count:"

// Redis is a Cache backed by a Redis server, shared across processes.
type Redis struct {
	client *redis.Client
}

// NewRedis connects lazily to the Redis server at addr.
func NewRedis(addr string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(c *redis.Client) *Redis {
	return &Redis{client: c}
}

func (r *Redis) Get(ctx context.Context, key string) (int, bool) {
	n, err := r.client.Get(ctx, keyPrefix+key).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("redis cache get failed")
		}
		return 0, false
	}
	return n, true
}

func (r *Redis) Set(ctx context.Context, key string, n int, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, keyPrefix+key, n, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache set failed")
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
