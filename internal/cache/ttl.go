// Package cache provides a read-through cache for values that are refreshed
// as a whole from a slower backing store.
package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
)

// valueKey is the single slot used in the underlying store.
const valueKey = "value"

// Loader fetches a fresh copy of the cached value.
type Loader[T any] func(ctx context.Context) (T, error)

// TTL caches the result of a Loader for a fixed duration. Reads after expiry
// trigger one refresh; concurrent readers wait for the same refresh. When a
// refresh fails and a previous value exists, the previous value is served and
// the failure is logged.
type TTL[T any] struct {
	name  string
	ttl   time.Duration
	load  Loader[T]
	items *gocache.Cache
	group singleflight.Group
	log   logger.Logger

	mu       sync.RWMutex
	last     T
	hasLast  bool
	loadedAt time.Time
}

// NewTTL returns a cache named name that refreshes via load every ttl.
func NewTTL[T any](name string, ttl time.Duration, load Loader[T]) *TTL[T] {
	return &TTL[T]{
		name: name,
		ttl:  ttl,
		load: load,
		// no janitor: expired entries are detected on read and replaced
		items: gocache.New(ttl, 0),
		log:   logger.Global().Module("cache").With(logger.String("cache", name)),
	}
}

// Get returns the cached value, refreshing it when it has expired.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	if v, ok := c.items.Get(valueKey); ok {
		return v.(T), nil
	}

	v, err, _ := c.group.Do(valueKey, func() (any, error) {
		// another caller may have finished a refresh while we queued
		if v, ok := c.items.Get(valueKey); ok {
			return v, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *TTL[T]) refresh(ctx context.Context) (any, error) {
	start := time.Now()
	fresh, err := c.load(ctx)
	if err != nil {
		c.mu.RLock()
		last, ok := c.last, c.hasLast
		c.mu.RUnlock()
		if ok {
			c.log.Warn("refresh failed, serving previous value",
				logger.Duration("duration", time.Since(start)),
				logger.Error(err))
			return last, nil
		}
		return nil, errors.New(err).
			Component("cache").
			Category(errors.CategoryResource).
			Context("cache", c.name).
			Timing("refresh", time.Since(start)).
			Build()
	}

	c.items.Set(valueKey, fresh, gocache.DefaultExpiration)
	c.mu.Lock()
	c.last, c.hasLast, c.loadedAt = fresh, true, time.Now()
	c.mu.Unlock()
	c.log.Debug("refreshed", logger.Duration("duration", time.Since(start)))
	return fresh, nil
}

// Invalidate forces the next Get to refresh.
func (c *TTL[T]) Invalidate() {
	c.items.Delete(valueKey)
}

// LoadedAt returns the time of the last successful refresh.
func (c *TTL[T]) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// TTL returns the configured lifetime.
func (c *TTL[T]) TTL() time.Duration { return c.ttl }
