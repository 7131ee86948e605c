package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration. The limit applies per
// tenant and client IP, so one practice flooding the API does not starve the
// others sharing the deployment.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is a single token bucket.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newBucket(rate float64, burst int) *bucket {
	return &bucket{
		tokens:     float64(burst),
		burst:      float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// take refills by elapsed time and spends one token. It reports whether the
// request may proceed and how many whole tokens remain.
func (b *bucket) take() (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = math.Min(b.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate)
	b.lastRefill = now

	if b.tokens < 1 {
		return false, 0
	}
	b.tokens--
	return true, int(b.tokens)
}

// retryAfter estimates whole seconds until the next token is available.
func (b *bucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// limiterStore holds per-key token buckets.
type limiterStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
	}
}

func (s *limiterStore) getBucket(key string) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if b, ok := s.buckets[key]; ok {
		return b
	}
	b = newBucket(s.cfg.RequestsPerSecond, s.cfg.BurstSize)
	s.buckets[key] = b
	return b
}

// limitKey scopes the bucket to the resolved tenant when one is present.
// Tenant resolution runs before the limiter, so authenticated traffic is
// isolated per practice; requests carrying no tenant at all share a
// per-IP bucket.
func limitKey(c echo.Context) string {
	ip := c.RealIP()
	if tenant, ok := c.Get("tenant_id").(string); ok && tenant != "" {
		return tenant + ":" + ip
	}
	if tenant, ok := c.Get("jwt_tenant_id").(string); ok && tenant != "" {
		return tenant + ":" + ip
	}
	return ip
}

// RateLimit returns a rate limiting middleware.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			b := store.getBucket(limitKey(c))
			ok, remaining := b.take()

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(b.retryAfter()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
