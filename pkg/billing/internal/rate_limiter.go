package internal

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a fixed-window, per-client-IP limiter for webhook endpoints.
type RateLimiter struct {
	mu           sync.Mutex
	windows      map[string]*window
	limit        int
	period       time.Duration
	calls        int
	sweepEvery   int
	sweepAtSize  int
	trustProxies bool
	now          func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per client per period.
// When trustProxies is set the first X-Forwarded-For hop identifies the client.
func NewRateLimiter(limit int, period time.Duration, trustProxies bool) *RateLimiter {
	return &RateLimiter{
		windows:      make(map[string]*window),
		limit:        limit,
		period:       period,
		sweepEvery:   100,
		sweepAtSize:  200,
		trustProxies: trustProxies,
		now:          time.Now,
	}
}

// Allow records a request from client and reports whether it is within the limit.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls >= rl.sweepEvery || len(rl.windows) > rl.sweepAtSize {
		rl.sweep(now)
		rl.calls = 0
	}

	w, ok := rl.windows[client]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[client] = &window{count: 1, resetAt: now.Add(rl.period)}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// sweep drops expired windows. Must be called with rl.mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	for client, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, client)
		}
	}
}

// Size returns the number of tracked clients.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Middleware answers 429 once a client exceeds the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r, rl.trustProxies)) {
			WriteText(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the request's client address without port.
func ClientIP(r *http.Request, trustProxies bool) string {
	if trustProxies {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
