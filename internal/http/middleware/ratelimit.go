package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wolfman30/leadflow/internal/tenancy"
)

// KeyFunc picks the bucket a request is charged against.
type KeyFunc func(r *http.Request) string

// RateLimiter is a keyed token bucket limiter.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows rate requests per second per key with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow charges one token to key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), seen: now}
		rl.buckets[key] = b
	}
	b.tokens += now.Sub(b.seen).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Evict drops buckets idle longer than the idle TTL and returns how many were removed.
func (rl *RateLimiter) Evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Run evicts idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Evict()
		}
	}
}

// KeyByTenant charges requests to the tenant in context, falling back to the client IP.
func KeyByTenant(r *http.Request) string {
	if tenantID, ok := tenancy.TenantIDFromContext(r.Context()); ok {
		return "tenant:" + tenantID
	}
	return KeyByIP(r)
}

// KeyByIP charges requests to the client address. chi's RealIP middleware
// rewrites RemoteAddr from proxy headers upstream.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects requests over the limit with 429 and a Retry-After hint.
func RateLimit(limiter *RateLimiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByIP
	}
	retryAfter := "1"
	if limiter.rate > 0 && limiter.rate < 1 {
		retryAfter = strconv.Itoa(int(1/limiter.rate + 0.5))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(key(r)) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
