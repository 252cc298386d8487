// Package ratelimit provides a strict rate limiter for pacing
// steady-state transfer submission at a target rate.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter provides strict rate limiting by tracking the next available
// permit time and ensuring permits are issued no faster than the target rate.
//
// Unlike token bucket approaches there is no burst allowance: permits are
// spaced by a strict minimum interval. A rate of zero or less disables
// pacing entirely and Wait returns immediately.
type Limiter struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration // 0 means unlimited

	// Rate tracking (atomic for lock-free reads)
	rateX1000 atomic.Int64 // rate * 1000 for precision
}

// New creates a new Limiter with the specified rate (permits per second).
// A rate of zero or less creates an unlimited Limiter.
func New(ratePerSec float64) *Limiter {
	l := &Limiter{nextPermitTime: time.Now()}
	l.SetRate(ratePerSec)
	return l
}

// Wait blocks until a permit is available or the context is cancelled.
// Permits are issued strictly at the configured rate. A cancelled Wait
// returns its permit slot to the schedule.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	if l.interval == 0 {
		l.mu.Unlock()
		return ctx.Err()
	}

	// Take the next permit time and advance it
	permitTime := l.nextPermitTime
	l.nextPermitTime = permitTime.Add(l.interval)
	l.mu.Unlock()

	// A permit time in the past means we are behind schedule and the
	// permit is issued immediately.
	waitDuration := time.Until(permitTime)
	if waitDuration <= 0 {
		return nil
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		// The slot was never used; hand it back to the next caller.
		l.mu.Lock()
		l.nextPermitTime = l.nextPermitTime.Add(-l.interval)
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate updates the rate limit dynamically, taking effect for
// subsequent permits. A rate of zero or less removes the limit.
func (l *Limiter) SetRate(ratePerSec float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ratePerSec <= 0 {
		l.interval = 0
		l.rateX1000.Store(0)
		return
	}

	l.interval = time.Duration(float64(time.Second) / ratePerSec)
	l.rateX1000.Store(int64(ratePerSec * 1000))

	// The schedule restarts from now; the old spacing does not carry over.
	if now := time.Now(); l.nextPermitTime.Before(now) {
		l.nextPermitTime = now
	}
}

// Rate returns the current rate limit, or 0 when unlimited.
func (l *Limiter) Rate() float64 {
	return float64(l.rateX1000.Load()) / 1000
}
