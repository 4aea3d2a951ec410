// Package redis connects the shared Redis instance that backs the recompute
// lease and the assistant rate limit.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"parity/internal/platform/config"
	"parity/internal/ratelimit/store/bucket"
	"parity/pkg/platform/lease"
)

// Client owns the connection pool and hands out the Redis-backed stores.
type Client struct {
	rdb *redis.Client
}

// New connects using cfg. It returns nil without error when no URL is
// configured; callers then run the in-process lease and limiter.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// Health pings the server; it is registered as the "redis" health check.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Lease serializes recomputes of one company across server instances.
func (c *Client) Lease(logger *slog.Logger) *lease.Redis {
	return lease.NewRedis(c.rdb, logger)
}

// RateLimitStore keeps assistant request windows shared across instances.
func (c *Client) RateLimitStore() *bucket.RedisBucketStore {
	return bucket.NewRedisBucketStore(c.rdb)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
