package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"neighborvendors_backend/internal/config"
)

// Client wraps the go-redis client. A nil *Client means Redis is not
// configured and callers should fall back to their memory stores.
type Client struct {
	*redis.Client
}

// New creates a Redis client from REDIS_URL. Returns (nil, nil) when unset.
func New(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}
