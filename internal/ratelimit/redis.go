package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis counts in Redis so the quota holds across replicas. One
// pipeline per decision: INCR the identity's counter, EXPIRE it only
// if it has no expiry yet (the window anchor), then read the remaining
// TTL for the reset header.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	limit  atomic.Int64
}

// NewRedis returns a Redis limiter with the given per-window quota.
func NewRedis(client *redis.Client, limit int, logger *slog.Logger) *Redis {
	r := &Redis{client: client, logger: logger}
	r.limit.Store(int64(limit))
	return r
}

// SetLimit swaps the quota; running windows keep their counts.
func (r *Redis) SetLimit(limit int) {
	r.limit.Store(int64(limit))
}

// Allow counts one request for identity. Backend failure fails open
// with a warning.
func (r *Redis) Allow(ctx context.Context, identity string) Result {
	limit := int(r.limit.Load())
	key := "rate_limit:" + identity

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, Window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("ratelimit: backend unavailable, failing open",
			slog.String("identity", identity), slog.String("error", err.Error()))
		return Result{Allowed: true, Limit: limit, Remaining: limit, Reset: time.Now().Add(Window)}
	}

	reset := time.Now().Add(Window)
	if d := ttl.Val(); d > 0 {
		reset = time.Now().Add(d)
	}
	return decide(limit, int(incr.Val()), reset)
}
