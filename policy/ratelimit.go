package policy

import (
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding-window counter keyed by string. The
// policy keys it by user; the HTTP layer keys it by client address. State
// is process-local on purpose: budgets are a pressure valve, not an
// invariant, and the per-poll caps in storage stay authoritative across
// restarts.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter with the given sliding window.
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		hits:   map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow records a hit for key if fewer than limit hits happened within the
// window, and reports whether it was admitted.
func (r *RateLimiter) Allow(key string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.recent(key, now)
	if len(recent) >= limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// Hits returns how many hits key has inside the current window.
func (r *RateLimiter) Hits(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recent(key, r.now()))
}

// Prune drops keys whose hits all fell out of the window. The background
// worker calls this periodically so idle keys do not accumulate.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key := range r.hits {
		if recent := r.recent(key, now); len(recent) == 0 {
			delete(r.hits, key)
		} else {
			r.hits[key] = recent
		}
	}
}

// recent returns the hits of key still inside the window at now. Hits are
// stored in order, so the survivors are a suffix.
func (r *RateLimiter) recent(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	hs := r.hits[key]
	i := 0
	for i < len(hs) && !hs[i].After(cutoff) {
		i++
	}
	return hs[i:]
}
