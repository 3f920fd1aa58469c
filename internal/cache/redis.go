package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Store backed by a shared Redis instance. TTL enforcement is
// delegated to the server; backend failures are logged at warn level and
// downgraded to a miss or no-op.
type Redis struct {
	Client *redis.Client
	Logger zerolog.Logger
}

// NewRedis constructs a Redis-backed store.
func NewRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{Client: client, Logger: logger}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	if r == nil || r.Client == nil {
		return "", false
	}
	value, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.Logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return "", false
	}
	return value, true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.Logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Del(ctx, key).Err(); err != nil {
		r.Logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}
