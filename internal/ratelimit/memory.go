package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// Memory is an in-process Limiter for tests and deployments without
// Redis. Counters live per identity; dead windows are purged
// opportunistically once the map grows past a threshold.
type Memory struct {
	limit   atomic.Int64
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemory returns a Memory limiter with the given per-window quota.
func NewMemory(limit int) *Memory {
	m := &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	m.limit.Store(int64(limit))
	return m
}

// SetLimit swaps the quota; the running windows keep their counts.
func (m *Memory) SetLimit(limit int) {
	m.limit.Store(int64(limit))
}

// Allow counts one request for identity in its current window.
func (m *Memory) Allow(_ context.Context, identity string) Result {
	limit := int(m.limit.Load())
	now := m.now()

	m.mu.Lock()
	w, ok := m.windows[identity]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(Window)}
		m.windows[identity] = w
		if len(m.windows) > 4096 {
			m.purge(now)
		}
	}
	w.count++
	count, reset := w.count, w.reset
	m.mu.Unlock()

	return decide(limit, count, reset)
}

// purge drops expired windows. Caller holds the lock.
func (m *Memory) purge(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.reset) {
			delete(m.windows, k)
		}
	}
}
