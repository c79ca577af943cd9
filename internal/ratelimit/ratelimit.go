// Package ratelimit provides a keyed rate limiter using token bucket algorithm.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// sweepInterval is how often idle limiters are looked for.
	sweepInterval = time.Minute
	// idleTTL is how long a key may go unused before its limiter is dropped.
	idleTTL = 10 * time.Minute
)

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key gets its own independent rate limiter.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyed
	limit    rate.Limit
	burst    int

	// Cleanup
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new keyed rate limiter.
// rps: requests per second allowed.
// burst: maximum burst size (tokens available immediately).
func New(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*keyed),
		limit:    rate.Limit(rps),
		burst:    burst,
		done:     make(chan struct{}),
	}

	go krl.cleanup()

	return krl
}

// PerMinute creates a limiter allowing n requests per minute per key,
// all of which may be spent at once.
func PerMinute(n int) *KeyedRateLimiter {
	return New(float64(n)/time.Minute.Seconds(), n)
}

// Allow checks if a request for the given key should be allowed.
// Returns immediately without blocking.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key, time.Now()).Allow()
}

// Len returns the number of keys currently tracked.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// getLimiter returns the limiter for a key, creating one if needed.
func (krl *KeyedRateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	k, exists := krl.limiters[key]
	if !exists {
		k = &keyed{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = k
	}
	k.lastSeen = now
	return k.limiter
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

// cleanup drops idle limiters until Stop is called.
func (krl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			krl.sweep(now)
		case <-krl.done:
			return
		}
	}
}

// sweep removes limiters not used since now-idleTTL. A dropped key starts
// over with a full bucket, which is no more than it would have refilled to.
func (krl *KeyedRateLimiter) sweep(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	for key, k := range krl.limiters {
		if now.Sub(k.lastSeen) > idleTTL {
			delete(krl.limiters, key)
		}
	}
}
