package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/model"
)

// Redis publishes each event to a pub/sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
}

// NewRedis creates a Redis publisher from config.
func NewRedis(cfg config.RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithClient(client, cfg.Channel)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

// Name implements router.Publisher.
func (r *Redis) Name() string { return "redis" }

// Publish implements router.Publisher.
func (r *Redis) Publish(ctx context.Context, ev model.Event) error {
	data, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
