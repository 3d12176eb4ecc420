package ratelimit

import (
	"context"
	"time"
)

// Window is the length of one counting window.
const Window = time.Minute

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the whole seconds until the window resets.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.Reset.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

func windowStart(now time.Time) int64 {
	return now.Unix() / int64(Window/time.Second)
}

func windowReset(window int64) time.Time {
	return time.Unix((window+1)*int64(Window/time.Second), 0).UTC()
}
