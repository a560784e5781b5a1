package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis publishes events on a pub/sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
	owned   bool
}

// NewRedis publishes through an existing client.
func NewRedis(client redis.UniversalClient, channel string) *Redis {
	if channel == "" {
		channel = "campaignsync:events"
	}
	return &Redis{client: client, channel: channel}
}

// NewRedisFromURL opens its own client; Close closes it.
func NewRedisFromURL(url, channel string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	r := NewRedis(redis.NewClient(opts), channel)
	r.owned = true
	return r, nil
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
