package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu         sync.Mutex
	counters   map[string]*memoryEntry
	lastPruned int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current minute.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	window := windowStart(now)
	reset := windowReset(window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(window)
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: window}
		l.counters[key] = entry
	}
	if entry.window != window {
		entry.window = window
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - entry.count, Reset: reset}, nil
}

// pruneLocked drops counters from earlier windows once per window.
func (l *MemoryLimiter) pruneLocked(window int64) {
	if l.lastPruned == window {
		return
	}
	l.lastPruned = window
	for key, entry := range l.counters {
		if entry.window < window {
			delete(l.counters, key)
		}
	}
}
