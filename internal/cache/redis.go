package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaignsync/internal/config"
)

// Redis stores entries as plain string keys. Bucket staleness is decided
// from the stored timestamp; the Redis expiry only bounds garbage.
type Redis struct {
	client redis.UniversalClient
	prefix string
	expiry time.Duration
}

// NewRedis wraps client. expiry <= 0 keeps keys for a day.
func NewRedis(client redis.UniversalClient, prefix string, expiry time.Duration) *Redis {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Redis{client: client, prefix: prefix, expiry: expiry}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

// Client exposes the connection for other Redis users such as locks.
func (r *Redis) Client() redis.UniversalClient { return r.client }

// New builds the cache selected by cfg.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("cache: redis requires redis_url")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis url: %w", err)
		}
		return NewRedis(redis.NewClient(opts), cfg.KeyPrefix, 4*cfg.TTL()), nil
	}
	return nil, fmt.Errorf("cache: unknown type %q", cfg.Type)
}
