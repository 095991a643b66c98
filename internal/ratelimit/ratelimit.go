// Package ratelimit admits requests per identity in fixed one-minute
// windows. The window is anchored at the first request: its reset time
// never moves while requests keep arriving, so a throttled caller knows
// exactly when quota returns. On backend failure the limiter fails
// open; product availability outranks quota enforcement during an
// outage.
package ratelimit

import (
	"context"
	"time"
)

// Window is the counting window every identity is measured over.
const Window = time.Minute

// Result is one admission decision with the quota details surfaced in
// the X-RateLimit response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether an identity may proceed. SetLimit swaps the
// per-window quota at runtime (config hot-reload).
type Limiter interface {
	Allow(ctx context.Context, identity string) Result
	SetLimit(limit int)
}

func decide(limit, count int, reset time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
}
