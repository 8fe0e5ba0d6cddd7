package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const pauseKey = "storefront:paused"

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetPaused stores the shared maintenance flag
func (c *Client) SetPaused(ctx context.Context, paused bool) error {
	return c.rdb.Set(ctx, pauseKey, paused, 0).Err()
}

// IsPaused reads the maintenance flag; an unset key means not paused
func (c *Client) IsPaused(ctx context.Context) (bool, error) {
	val, err := c.rdb.Get(ctx, pauseKey).Bool()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val, nil
}
