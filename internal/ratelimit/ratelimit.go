// Package ratelimit gates outbound provider calls with per-source token
// buckets. Buckets hold one minute's worth of tokens and refill
// continuously; callers that are denied decide their own backoff.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// DefaultPerMinute is used for sources with no configured limit.
const DefaultPerMinute = 100

// Registry holds one token bucket per source key. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   map[string]int
	fallback int
}

// NewRegistry creates a registry with the given per-source per-minute
// limits. Sources not listed fall back to DefaultPerMinute.
func NewRegistry(perMinute map[string]int) *Registry {
	limits := make(map[string]int, len(perMinute))
	for k, v := range perMinute {
		limits[k] = v
	}
	return &Registry{
		limiters: make(map[string]*rate.Limiter),
		perMin:   limits,
		fallback: DefaultPerMinute,
	}
}

// SetLimit registers or replaces the per-minute limit for a source.
func (r *Registry) SetLimit(source string, perMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perMin[source] = perMinute
	delete(r.limiters, source)
}

// Allow consumes one token for the source if available. Non-blocking: a
// false return means the caller should back off and try later.
func (r *Registry) Allow(source string) bool {
	return r.limiterFor(source).Allow()
}

// Limit returns the configured per-minute limit for a source.
func (r *Registry) Limit(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.perMin[source]; ok {
		return lim
	}
	return r.fallback
}

func (r *Registry) limiterFor(source string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[source]; ok {
		return lim
	}
	perMin := r.fallback
	if v, ok := r.perMin[source]; ok && v > 0 {
		perMin = v
	}
	// Capacity is one minute of requests; refill is capacity/60 per second.
	lim := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
	r.limiters[source] = lim
	return lim
}
