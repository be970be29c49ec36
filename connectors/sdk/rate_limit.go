// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket used to pace calls against upstream
// government APIs, several of which ban clients that exceed undocumented
// request rates.
type RateLimiter struct {
	rate       float64 // tokens refilled per second
	burst      int
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests/second with the
// given burst capacity
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := r.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TryAcquire takes a token without blocking
func (r *RateLimiter) TryAcquire() bool {
	_, ok := r.take()
	return ok
}

// take refills the bucket and either consumes a token or reports how long to
// wait for the next one.
func (r *RateLimiter) take() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}
	r.lastRefill = now

	if r.tokens >= 1 {
		r.tokens--
		return 0, true
	}

	wait := time.Duration((1 - r.tokens) / r.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, false
}
