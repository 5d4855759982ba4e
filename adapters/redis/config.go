// Package redisstore backs guest sessions and report job state with Redis.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection shared by the stores.
type Config struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	Prefix       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// Client bundles a Redis connection with a key prefix. Stores built from
// the same Client share the connection pool.
type Client struct {
	rdb        redis.UniversalClient
	prefix     string
	ownsClient bool
}

// Dial opens a connection and verifies it with PING.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	c := NewFromClient(rdb, cfg.Prefix)
	c.ownsClient = true
	return c, nil
}

// NewFromClient wraps a caller-managed client; Close will not close it.
func NewFromClient(rdb redis.UniversalClient, prefix string) *Client {
	if prefix == "" {
		prefix = "sentiant"
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Redis exposes the underlying client, e.g. for the job queue.
func (c *Client) Redis() redis.UniversalClient { return c.rdb }

// Prefix returns the key namespace.
func (c *Client) Prefix() string { return c.prefix }

// Close closes the connection if Dial opened it.
func (c *Client) Close() error {
	if c.ownsClient {
		return c.rdb.Close()
	}
	return nil
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
