package util

import (
	"context"
	"time"
)

// RateLimiter paces API calls to at most perMinute operations per minute
// using a single-token bucket. Shioaji meters historical-data queries
// against a daily byte quota, so pacing fetches keeps long backfills from
// exhausting it mid-run.
//
// The run model is single-threaded, so no locking is needed.
type RateLimiter struct {
	interval time.Duration
	next     time.Time
}

// NewRateLimiter creates a limiter allowing perMinute calls per minute.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if perMinute > 0 {
		rl.interval = time.Minute / time.Duration(perMinute)
	}
	return rl
}

// Wait blocks until the next call is permitted or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.interval == 0 {
		return ctx.Err()
	}

	now := time.Now()
	if wait := rl.next.Sub(now); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			now = time.Now()
		}
	}

	rl.next = now.Add(rl.interval)
	return nil
}
