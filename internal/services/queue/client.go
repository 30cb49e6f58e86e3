package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the startup ping so a bad REDIS_URL fails fast
// instead of hanging server boot.
const connectTimeout = 5 * time.Second

// Client owns the Redis connection shared by the action queue and is the
// source of the raw client handed to storage and the event broadcaster.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient parses redisURL, connects, and verifies the connection with a
// bounded ping.
func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", opt.Addr)

	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient exposes the underlying client for components that share
// the connection (storage, event broadcaster).
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
