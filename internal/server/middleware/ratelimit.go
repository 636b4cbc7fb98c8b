package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerIPRateLimitConfig holds per-IP rate limiting configuration.
type PerIPRateLimitConfig struct {
	// RequestsPerSecond is the rate limit per IP.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// Enabled controls whether rate limiting is active.
	Enabled bool
}

const (
	perIPMaxAge          = 10 * time.Minute
	perIPCleanupInterval = time.Minute
	perIPMaxEntries      = 10000
)

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// perIPLimiter manages rate limiters per client IP. Idle entries are
// dropped by a background cleanup and the table is capped at perIPMaxEntries.
type perIPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	rps      rate.Limit
	burst    int
	done     chan struct{}
}

func newPerIPLimiter(rps float64, burst int) *perIPLimiter {
	l := &perIPLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		done:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *perIPLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.limiters[ip]
	if !exists {
		if len(l.limiters) >= perIPMaxEntries {
			l.evictOldest()
		}
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (l *perIPLimiter) cleanupLoop() {
	ticker := time.NewTicker(perIPCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.done:
			return
		}
	}
}

func (l *perIPLimiter) cleanup() {
	cutoff := time.Now().Add(-perIPMaxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// evictOldest removes the least recently used entry. Callers hold mu.
func (l *perIPLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, entry := range l.limiters {
		if oldestIP == "" || entry.lastAccess.Before(oldest) {
			oldestIP = ip
			oldest = entry.lastAccess
		}
	}
	if oldestIP != "" {
		delete(l.limiters, oldestIP)
	}
}

// PerIPRateLimit creates a middleware that limits request rate per client IP.
func PerIPRateLimit(config *PerIPRateLimitConfig) Middleware {
	if !config.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	ipLimiter := newPerIPLimiter(config.RequestsPerSecond, config.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			limiter := ipLimiter.getLimiter(ip)

			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				WriteError(w, r, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxied requests); the
	// first entry is the originating client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr without the port
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
