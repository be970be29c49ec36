// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"cidadao/platform/shared/logger"
	"cidadao/platform/shared/types"
)

const rateLimitKeyPrefix = "cidadao:ratelimit:"

// RateLimiter enforces a per-caller requests-per-minute limit with a sliding
// window. Redis keeps the window shared across replicas; without Redis the
// limiter falls back to per-process counters. Redis errors fail open so a
// cache outage never blocks citizen queries.
type RateLimiter struct {
	client  *redis.Client
	limit   int
	runtime *types.RuntimeConfig
	log     *logger.Logger

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter builds a limiter. The Redis client may be nil.
func NewRateLimiter(client *redis.Client, limitPerMinute int, runtime *types.RuntimeConfig) *RateLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return &RateLimiter{
		client:  client,
		limit:   limitPerMinute,
		runtime: runtime,
		log:     logger.New("ratelimit"),
		windows: make(map[string]*rateWindow),
	}
}

// Allow reports whether one more request from the caller fits in the window
func (rl *RateLimiter) Allow(ctx context.Context, caller string) bool {
	if !rl.runtime.EnforceRateLimit {
		return true
	}
	if rl.client != nil {
		return rl.allowRedis(ctx, caller)
	}
	return rl.allowLocal(caller)
}

// allowRedis runs the sliding window as one pipeline: trim expired
// timestamps, count the rest, record this request
func (rl *RateLimiter) allowRedis(ctx context.Context, caller string) bool {
	now := time.Now()
	key := rateLimitKeyPrefix + caller

	pipe := rl.client.Pipeline()
	minScore := now.Add(-time.Minute).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.log.Warn("", "rate limit check failed, allowing request", map[string]interface{}{
			"caller": caller,
			"error":  err.Error(),
		})
		return true
	}
	return count.Val() < int64(rl.limit)
}

func (rl *RateLimiter) allowLocal(caller string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[caller]
	if !ok || now.After(window.resetAt) {
		rl.windows[caller] = &rateWindow{count: 1, resetAt: now.Add(time.Minute)}
		return true
	}
	window.count++
	return window.count <= rl.limit
}

// Middleware rejects over-limit requests with 429. The caller identity is
// the authenticated subject when present, the remote address otherwise.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFromContext(r.Context())
		if caller == "anonymous" {
			caller = remoteHost(r)
		}

		if !rl.Allow(r.Context(), caller) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the client
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
