// Package tiered layers a per-replica cache over a shared one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/CourseForge/internal/port/cache"
)

// Cache reads L1 first and backfills it from L2. Writes go to both levels.
//
// L2 is shared across replicas and may be unavailable: read and write errors
// are logged and the cache behaves as L1 only. L1 entries never outlive
// l1Expire, so a Delete issued on another replica is seen within that window.
// A nil L2 gives a plain L1 cache.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. A non-positive l1Expire leaves L1 lifetimes to
// the caller's ttl.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if c.l1Expire <= 0 {
		return ttl
	}
	if ttl <= 0 || ttl > c.l1Expire {
		return c.l1Expire
	}
	return ttl
}

// Get returns the L1 entry, or the L2 entry copied into L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "tiered cache: l2 get failed", "key", key, "error", err)
		return nil, false, nil
	case !found:
		return nil, false, nil
	}
	if err := c.l1.Set(ctx, key, val, c.l1TTL(0)); err != nil {
		slog.WarnContext(ctx, "tiered cache: l1 backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

// Set writes L1 then L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1TTL(ttl)); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "tiered cache: l2 set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes the key from both levels. An L2 failure is returned: other
// replicas would keep serving the stale entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, key)
}
