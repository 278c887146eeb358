// Package ratelimit spaces out requests per key with token buckets.
// Narration uses it to keep concurrent workers from hammering the TTS host.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused key keeps its bucket.
const idleTTL = 30 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter holds one independent token bucket per key.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps events per second with the given burst.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Every creates a keyed limiter that admits one event per interval per key.
// A non-positive interval never blocks.
func Every(interval time.Duration) *KeyedRateLimiter {
	if interval <= 0 {
		return &KeyedRateLimiter{limiters: make(map[string]*entry), limit: rate.Inf, burst: 1}
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Every(interval),
		burst:    1,
	}
}

// Allow reports whether an event for key may happen now, without blocking.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.get(key).Allow()
}

// Wait blocks until an event for key is allowed or ctx is done.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.get(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

func (krl *KeyedRateLimiter) get(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	now := time.Now()
	if e, ok := krl.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}

	krl.pruneLocked(now)
	e := &entry{limiter: rate.NewLimiter(krl.limit, krl.burst), lastSeen: now}
	krl.limiters[key] = e
	return e.limiter
}

// pruneLocked drops buckets idle longer than idleTTL. Caller holds mu.
func (krl *KeyedRateLimiter) pruneLocked(now time.Time) {
	for k, e := range krl.limiters {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(krl.limiters, k)
		}
	}
}
