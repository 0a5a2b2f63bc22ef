// Package ratelimit implements the per-tool sliding-window rate limiter:
// a fixed 60-second window with a policy-driven per-minute limit, pruned
// lazily on access so bucket memory stays bounded by the configured
// limit rather than growing with client traffic.
package ratelimit

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const windowSeconds = 60

// pruneProbability is the 1/100 chance, on every Check, of sweeping all
// buckets for ones that have gone empty. A fixed timer would do the same
// job; this form needs no background goroutine.
const pruneProbability = 0.01

// RateExceeded reports that tool's call budget for the current window was
// exhausted, with the client-facing retry hint.
type RateExceeded struct {
	Tool         string
	RetryAfterMs int64
}

func (e *RateExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %dms", e.Tool, e.RetryAfterMs)
}

// RateLimiter tracks call timestamps per tool over a sliding 60s window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// New returns a RateLimiter with an empty bucket set.
func New() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check records a call attempt for tool against limit (calls per 60s
// window) and reports whether it is within budget.
func (rl *RateLimiter) Check(tool string, limit int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-windowSeconds * time.Second)

	bucket := pruneBucket(rl.buckets[tool], cutoff)

	if len(bucket) >= limit {
		rl.buckets[tool] = bucket
		retryAfter := bucket[0].Add(windowSeconds * time.Second).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateExceeded{Tool: tool, RetryAfterMs: retryAfter.Milliseconds()}
	}

	bucket = append(bucket, now)
	rl.buckets[tool] = bucket

	if rand.Float64() < pruneProbability {
		rl.pruneAllLocked(cutoff)
	}

	return nil
}

func pruneBucket(timestamps []time.Time, cutoff time.Time) []time.Time {
	pruned := timestamps[:0:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}

// pruneAllLocked removes any bucket that is empty after pruning expired
// entries; rl.mu must be held.
func (rl *RateLimiter) pruneAllLocked(cutoff time.Time) {
	for tool, timestamps := range rl.buckets {
		pruned := pruneBucket(timestamps, cutoff)
		if len(pruned) == 0 {
			delete(rl.buckets, tool)
		} else {
			rl.buckets[tool] = pruned
		}
	}
}
