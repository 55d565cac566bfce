package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOption func(*redisConfig)

type redisConfig struct {
	opts   redis.Options
	prefix string
}

func WithRedisAddr(addr string) RedisOption {
	return func(c *redisConfig) { c.opts.Addr = addr }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) { c.opts.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) { c.opts.DB = db }
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.opts.PoolSize = size
		c.opts.MinIdleConns = minIdle
		c.opts.PoolTimeout = timeout
	}
}

// WithRedisPrefix namespaces every key as "<prefix>:<key>".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.prefix = prefix }
}

// RedisCache shares published state between instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache connects and pings; an unreachable server fails construction.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := redisConfig{
		opts: redis.Options{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			PoolTimeout:  30 * time.Second,
		},
		prefix: "orgtrader",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	rc := NewRedisCacheFromClient(redis.NewClient(&cfg.opts), cfg.prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

// NewRedisCacheFromClient wraps an existing client (cluster, sentinel or plain).
func NewRedisCacheFromClient(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	wrapped := make([]string, len(keys))
	for i, k := range keys {
		wrapped[i] = c.key(k)
	}
	return c.client.Unlink(ctx, wrapped...).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}
