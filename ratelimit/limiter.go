// Package ratelimit provides sliding-window admission control shared by
// all workers talking to one vendor.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter admits at most N calls in any trailing window of length W.
// It keeps the timestamps of the most recent admissions; Acquire prunes
// expired stamps, admits if capacity remains, and otherwise sleeps
// until the oldest stamp leaves the window and retries.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter builds a Limiter admitting limit calls per window.
func NewLimiter(limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("rate limit requires positive limit and window, got %d per %s", limit, window)
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

// Acquire blocks until the caller may make one request, or until ctx
// is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		var now = l.now()
		l.prune(now)

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		// Window is full. Wait until the oldest admission expires.
		var wait = l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops stamps older than now - window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	var cutoff = now.Add(-l.window)
	var keep = 0
	for keep < len(l.stamps) && !l.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[keep:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var timer = time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
