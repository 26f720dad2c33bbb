// Package catalogcache decorates a catalog gateway with a read-through cache.
// Concurrent misses for the same key share one backend lookup, and the number
// of lookups in flight is bounded so a cold cache cannot exhaust the pool.
package catalogcache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/port/cache"
	"github.com/Strob0t/CourseForge/internal/port/catalog"
)

// keyPrefix versions the cached encoding. Bump it when Course changes shape.
const keyPrefix = "catalog.v1."

// Gateway is a caching catalog.Gateway.
type Gateway struct {
	next    catalog.Gateway
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	fills   *semaphore.Weighted
	metrics *cfotel.Metrics
}

// New wraps next. maxFills bounds concurrent backend lookups; values below 1
// are treated as 1.
func New(next catalog.Gateway, c cache.Cache, ttl time.Duration, maxFills int) *Gateway {
	if maxFills < 1 {
		maxFills = 1
	}
	return &Gateway{
		next:  next,
		cache: c,
		ttl:   ttl,
		fills: semaphore.NewWeighted(int64(maxFills)),
	}
}

// SetMetrics enables hit/miss counting.
func (g *Gateway) SetMetrics(m *cfotel.Metrics) {
	g.metrics = m
}

// CoursesByDepartment returns the cached course list, filling it on a miss.
func (g *Gateway) CoursesByDepartment(ctx context.Context, department string) ([]course.Course, error) {
	courses, err := load(ctx, g, DepartmentKey(department), func(ctx context.Context) ([]course.Course, error) {
		return g.next.CoursesByDepartment(ctx, department)
	})
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return courses, nil
}

// ListDepartments returns the cached department list, filling it on a miss.
func (g *Gateway) ListDepartments(ctx context.Context) ([]course.Department, error) {
	return load(ctx, g, DepartmentsKey, g.next.ListDepartments)
}

// Invalidate drops the department list and the given departments' course
// lists. The catalog refresh endpoint calls it after an import.
func (g *Gateway) Invalidate(ctx context.Context, departments ...string) error {
	keys := make([]string, 0, len(departments)+1)
	keys = append(keys, DepartmentsKey)
	for _, d := range departments {
		keys = append(keys, DepartmentKey(d))
	}
	for _, k := range keys {
		if err := g.cache.Delete(ctx, k); err != nil {
			return fmt.Errorf("invalidate %s: %w", k, err)
		}
	}
	return nil
}

// DepartmentsKey caches the department list.
const DepartmentsKey = keyPrefix + "departments"

// DepartmentKey derives a store-safe key from a department name. Names carry
// spaces and punctuation that remote KV stores reject, so they are hashed.
func DepartmentKey(department string) string {
	sum := blake2b.Sum256([]byte(department))
	return keyPrefix + "dept." + hex.EncodeToString(sum[:16])
}

func load[T any](ctx context.Context, g *Gateway, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	if raw, ok, err := g.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "catalog cache get failed", "key", key, "error", err)
	} else if ok {
		var out []T
		if err := json.Unmarshal(raw, &out); err == nil {
			g.count(ctx, "hit")
			return out, nil
		}
		slog.WarnContext(ctx, "catalog cache: corrupt entry", "key", key)
	}

	g.count(ctx, "miss")
	v, err, shared := g.group.Do(key, func() (any, error) {
		// The shared fill must not die with whichever caller started it.
		fillCtx := context.WithoutCancel(ctx)
		if err := g.fills.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.fills.Release(1)

		items, err := fetch(fillCtx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(items); err == nil {
			if err := g.cache.Set(fillCtx, key, data, g.ttl); err != nil {
				slog.WarnContext(ctx, "catalog cache set failed", "key", key, "error", err)
			}
		}
		return items, nil
	})
	if err != nil {
		g.count(ctx, "error")
		return nil, err
	}
	if shared {
		g.count(ctx, "shared")
	}
	// Callers sharing a fill must not share a backing array.
	return slices.Clone(v.([]T)), nil
}

func (g *Gateway) count(ctx context.Context, outcome string) {
	if g.metrics == nil {
		return
	}
	g.metrics.CatalogLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
