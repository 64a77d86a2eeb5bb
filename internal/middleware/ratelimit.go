package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitMiddleware provides sliding-window rate limiting per client.
type RateLimitMiddleware struct {
	requests map[string][]int64 // client -> unix timestamps
	mu       sync.Mutex         // guards requests
	now      func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		requests: make(map[string][]int64),
		now:      time.Now,
	}
}

// RateLimit allows maxRequests per windowSeconds for each client. A
// non-positive maxRequests disables the limit.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, windowSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get client key
			key := clientKey(r)

			// Clean old requests outside the window
			now := m.now().Unix()
			windowStart := now - int64(windowSeconds)

			m.mu.Lock()
			valid := m.requests[key][:0]
			for _, ts := range m.requests[key] {
				if ts > windowStart {
					valid = append(valid, ts)
				}
			}
			// Check if rate limit exceeded
			if len(valid) >= maxRequests {
				m.requests[key] = valid
				m.mu.Unlock()
				w.Header().Set("Retry-After", "1")
				writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			// Add current request
			m.requests[key] = append(valid, now)
			m.mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// Sweep drops clients with no requests inside the window.
func (m *RateLimitMiddleware) Sweep(windowSeconds int) {
	cutoff := m.now().Unix() - int64(windowSeconds)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, timestamps := range m.requests {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1] <= cutoff {
			delete(m.requests, key)
		}
	}
}

// clientKey groups requests by organisation when a token is present and by
// client IP otherwise.
func clientKey(r *http.Request) string {
	if claims, ok := GetUserFromContext(r.Context()); ok {
		return "org:" + claims.OrganisationID
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check for forwarded headers first
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to remote address
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
