// ratelimit.go - Per-IP sliding-window rate limiter.
//
// The limiter is an explicit, injectable value rather than package state,
// and eviction of stale entries happens on access instead of in a
// background goroutine, so tests can construct, drive, and reset it with a
// fake clock.
package server

import (
	"net/http"
	"sync"
	"time"
)

// rateLimiter allows 'rate' requests per 'window' per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time

	// allow calls since the last whole-map sweep
	sinceSweep int
}

// visitor tracks request timestamps for a single IP address.
type visitor struct {
	requests []time.Time
}

// sweepEvery bounds how often the whole visitor map is scanned for stale
// entries. Eviction correctness does not depend on the exact value.
const sweepEvery = 256

// newRateLimiter creates a limiter allowing 'rate' requests per 'window'.
// Example: newRateLimiter(100, time.Minute) allows 100 requests per minute per IP.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

// middleware enforces the limit and answers 429 when the window is full.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(getClientIP(r)) {
			jsonError(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow checks if a request from the given IP should be admitted. Stale
// timestamps for the IP are dropped here, and every sweepEvery calls the
// whole map is swept for idle visitors.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.sinceSweep++
	if rl.sinceSweep >= sweepEvery {
		rl.sweepLocked(cutoff)
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{requests: make([]time.Time, 0, rl.rate)}
		rl.visitors[ip] = v
	}

	valid := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	v.requests = valid

	if len(v.requests) >= rl.rate {
		return false
	}

	v.requests = append(v.requests, now)
	return true
}

// sweepLocked removes visitors whose newest request is older than the
// cutoff. Caller holds rl.mu.
func (rl *rateLimiter) sweepLocked(cutoff time.Time) {
	rl.sinceSweep = 0
	for ip, v := range rl.visitors {
		if len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// reset clears all tracked state. Test helper.
func (rl *rateLimiter) reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.visitors = make(map[string]*visitor)
	rl.sinceSweep = 0
}
