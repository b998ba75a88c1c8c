package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// Limit is the max attempts allowed in the window
	Limit int
	// Window is the time window for rate limiting
	Window time.Duration
}

// DefaultRateLimitConfig returns default attempt limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  10,
		Window: 15 * time.Minute,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	def := DefaultRateLimitConfig()
	if c.Limit <= 0 {
		c.Limit = def.Limit
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

// Limiter counts attempts per key
type Limiter interface {
	// Allow records an attempt for key and reports whether it is within the limit
	Allow(ctx context.Context, key string) (bool, error)
	// Config returns the limit being enforced
	Config() RateLimitConfig
}

// Resetter is implemented by limiters that can forget the attempts of a key
type Resetter interface {
	Reset(ctx context.Context, key string) error
}

// RateLimiter is an in-process Limiter using a fixed window per key. It is used
// when no Redis is configured.
type RateLimiter struct {
	config  RateLimitConfig
	windows map[string]*window
	mu      sync.Mutex
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  config.withDefaults(),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow implements Limiter
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rl.config.Window)}
		rl.windows[key] = w
	}
	w.count++
	return w.count <= rl.config.Limit, nil
}

// Config implements Limiter
func (rl *RateLimiter) Config() RateLimitConfig {
	return rl.config
}

// Reset implements Resetter
func (rl *RateLimiter) Reset(_ context.Context, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.windows, key)
	return nil
}

// Cleanup removes expired windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old windows
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.Window)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// KeyFunc derives the limiter key of a request
type KeyFunc func(r *http.Request) string

// ClientIPKey keys attempts by client address
func ClientIPKey(r *http.Request) string {
	return "ip:" + auth.ClientIP(r)
}

// RateLimit rejects requests over the limit with 429. Limiter errors fail open so
// that a Redis outage does not lock everyone out. A 2xx response clears the key's
// attempts when the limiter is a Resetter.
func RateLimit(limiter Limiter, name string, key KeyFunc, metrics *observability.Metrics) func(http.Handler) http.Handler {
	cfg := limiter.Config()
	limit := strconv.Itoa(cfg.Limit)
	retryAfter := fmt.Sprintf("%.0f", cfg.Window.Seconds())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			k := key(r)

			allowed, err := limiter.Allow(ctx, k)
			if err != nil {
				observability.FromContext(ctx).WithError(err).WithField("limiter", name).
					Error("attempt limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			if !allowed {
				metrics.RecordRateLimited(name)
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"limiter": name,
					"key":     k,
				}).Warn("attempt limit exceeded")

				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Remaining", "0")
				httputil.WriteTooManyRequests(w, "too many attempts, try again later")
				return
			}

			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.statusCode < 200 || sw.statusCode >= 300 {
				return
			}
			if resetter, ok := limiter.(Resetter); ok {
				if err := resetter.Reset(ctx, k); err != nil {
					observability.FromContext(ctx).WithError(err).WithField("limiter", name).
						Warn("failed to reset attempts after success")
				}
			}
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}
