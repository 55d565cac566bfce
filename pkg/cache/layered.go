package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// LayeredCache keeps a short-lived in-process copy in front of a shared remote cache.
// Concurrent misses for the same key collapse into a single remote read.
type LayeredCache struct {
	local  *MemoryCache
	remote Service
	ttl    time.Duration
	group  singleflight.Group
}

// NewLayeredCache wraps remote. Local copies live for at most localTTL so that a report
// published by another instance becomes visible within that window.
func NewLayeredCache(remote Service, localTTL time.Duration, opts ...MemoryOption) *LayeredCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Second
	}
	return &LayeredCache{local: NewMemoryCache(opts...), remote: remote, ttl: localTTL}
}

// Set writes through: remote first, local only if the remote write succeeded.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, lc.localTTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	v, err, _ := lc.group.Do(key, func() (interface{}, error) {
		var raw string
		if err := lc.remote.Get(ctx, key, &raw); err != nil {
			return nil, err
		}
		_ = lc.local.Set(ctx, key, raw, lc.ttl)
		return raw, nil
	})
	if err != nil {
		return err
	}
	return decode([]byte(v.(string)), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Ping(ctx context.Context) error { return lc.remote.Ping(ctx) }

func (lc *LayeredCache) Close() error {
	_ = lc.local.Close()
	return lc.remote.Close()
}

func (lc *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.ttl {
		return expiration
	}
	return lc.ttl
}
