package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an idle client's bucket is kept.
	limiterIdleTTL = 10 * time.Minute

	limiterSweepInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

func newIPRateLimiter(requestsPerMinute, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(requestsPerMinute) / 60),
		burst:   burst,
	}
}

// allow reports whether the client at ip may make another request now.
func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// sweep drops buckets idle for longer than ttl.
func (l *ipRateLimiter) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// cleanLoop sweeps idle buckets until ctx is cancelled.
func (l *ipRateLimiter) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(limiterIdleTTL)
		}
	}
}

// rateLimitMiddleware answers 429 once a client exhausts its bucket.
// It is a pass-through when rate limiting is disabled.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			s.metrics.rateLimited.Inc()
			w.Header().Set("Retry-After", "60")
			writeTooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
