package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/metrics"
)

// ErrEmptyKey is returned by GetOrFetch before any fetch is attempted.
var ErrEmptyKey = errors.New("cache: empty key")

// entry is created on a successful fetch and replaced wholesale on
// refresh, never mutated in place.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TimedCache memoizes the results of an expensive fetch per key, with a
// per-call TTL and single-flight coalescing: when several callers miss on
// the same key at once, exactly one of them runs the fetch and the rest
// share its outcome. Failed fetches are propagated to every waiter and
// never cached, so the next call retries upstream.
//
// One instance serves one endpoint group for the process lifetime. The
// entry map is unbounded; stale entries stay until overwritten.
type TimedCache[V any] struct {
	group  string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]

	flights singleflight.Group
}

// New creates an empty cache. The group name labels log lines and metrics.
func New[V any](group string, logger *zap.Logger) *TimedCache[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimedCache[V]{
		group:   group,
		logger:  logger.Named("cache").With(zap.String("group", group)),
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// GetOrFetch returns the cached value for key while it is fresh, and
// otherwise runs fetch and caches its result for ttl. A ttl <= 0 disables
// caching: the fetched value is handed to the waiters but never stored.
//
// ctx only bounds this caller's wait. A fetch already in flight keeps
// running after the caller gives up, and its result still lands in the
// cache for whoever asks next.
func (c *TimedCache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func() (V, error)) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}

	if v, ok := c.lookup(key); ok {
		metrics.CacheHitsTotal.WithLabelValues(c.group).Inc()
		return v, nil
	}
	metrics.CacheMissesTotal.WithLabelValues(c.group).Inc()

	start := time.Now()
	ch := c.flights.DoChan(key, func() (any, error) {
		// The winning flight may have stored a fresh entry between this
		// caller's miss and its turn as leader; serve that instead of
		// fetching again.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch()
		if err != nil {
			// No entry is written: a failure must not poison the cache.
			return nil, err
		}
		c.store(key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("fetch failed",
				zap.String("key", key),
				zap.Bool("shared", res.Shared),
				zap.Error(res.Err),
			)
			return zero, res.Err
		}
		if res.Shared {
			metrics.CacheCoalescedTotal.WithLabelValues(c.group).Inc()
		}
		c.logger.Debug("fetch completed",
			zap.String("key", key),
			zap.Bool("shared", res.Shared),
			zap.Duration("elapsed", time.Since(start)),
		)
		return res.Val.(V), nil
	}
}

// lookup returns the value for key if its entry is still fresh.
func (c *TimedCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TimedCache[V]) store(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	e := entry[V]{value: v, expiresAt: c.now().Add(ttl)}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of entries currently held, fresh or stale.
func (c *TimedCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
