// Package cache is the read-through coordinator in front of the store.
// It is strictly advisory: a failing backend degrades every read to a
// store query and every write to a no-op, logged but never surfaced.
// Invalidation runs synchronously inside the mutating operation, before
// the mutation is acknowledged, so a reader arriving after the ack can
// never see pre-write data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coordinator wraps a Backend with JSON codec, per-class TTLs, and
// stampede control. The TTL table swaps atomically on config reload.
type Coordinator struct {
	backend Backend
	logger  *slog.Logger
	group   singleflight.Group
	ttls    atomic.Pointer[TTLs]
}

// New returns a Coordinator over backend with the given TTL table.
func New(backend Backend, ttls TTLs, logger *slog.Logger) *Coordinator {
	c := &Coordinator{backend: backend, logger: logger}
	c.ttls.Store(&ttls)
	return c
}

// TTLs returns the current expiry table.
func (c *Coordinator) TTLs() TTLs {
	return *c.ttls.Load()
}

// SetTTLs swaps the expiry table. Entries already cached keep the TTL
// they were written with; only subsequent Sets pick up the new table.
func (c *Coordinator) SetTTLs(t TTLs) {
	c.ttls.Store(&t)
}

// GetJSON reads key into dest and reports a hit. Backend failures and
// undecodable entries count as misses.
func (c *Coordinator) GetJSON(ctx context.Context, key string, dest any) bool {
	b, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false
	}
	if err != nil {
		c.logger.Debug("cache: get failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		c.logger.Warn("cache: dropping corrupt entry", slog.String("key", key), slog.String("error", err.Error()))
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

// SetJSON caches v under key. A non-positive ttl disables caching for
// the call, which is how a class is switched off via config.
func (c *Coordinator) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache: marshal failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.backend.Set(ctx, key, b, ttl); err != nil {
		c.logger.Debug("cache: set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Invalidate drops the given keys. Failures are logged at warn because
// a failed invalidation can leave a stale entry until its TTL, but the
// mutation itself must not fail over it.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.logger.Warn("cache: invalidate failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// InvalidatePrefix drops every key under each prefix. Used for the
// page-scoped listing keys, where the mutating side cannot enumerate
// which pages have been cached.
func (c *Coordinator) InvalidatePrefix(ctx context.Context, prefixes ...string) {
	for _, p := range prefixes {
		if err := c.backend.DelPrefix(ctx, p); err != nil {
			c.logger.Warn("cache: invalidate prefix failed", slog.String("prefix", p), slog.String("error", err.Error()))
		}
	}
}

// GetOrLoad returns the cached value for key, or runs load exactly once
// for all concurrent callers of the same key and caches its result.
// Loader errors propagate to every waiter and nothing is cached. The
// flight runs on a context detached from the winning caller's
// cancelation: every waiter shares the one load, so a winner that goes
// away mid-load must not fail the callers still waiting on it.
func GetOrLoad[T any](ctx context.Context, c *Coordinator, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if c.GetJSON(ctx, key, &out) {
		return out, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// A waiter queued behind a finished flight re-checks the cache
		// before loading again.
		var fresh T
		if c.GetJSON(loadCtx, key, &fresh) {
			return fresh, nil
		}
		fresh, err := load(loadCtx)
		if err != nil {
			return fresh, err
		}
		c.SetJSON(loadCtx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
