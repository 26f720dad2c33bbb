// Package cache defines the byte-oriented cache port behind the catalog
// cache and the idempotency store.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key. A miss is (nil, false, nil); a
// non-positive ttl keeps the entry until evicted.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
