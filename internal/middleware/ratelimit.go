package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/soaringjerry/modern360/internal/utils"
)

// RateLimiter keeps one token bucket per client IP. A nil *RateLimiter
// allows everything.
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// NewRateLimiter allows perMinute requests per IP with a burst of the same
// size. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters:    map[string]*rate.Limiter{},
		limit:       rate.Limit(float64(perMinute) / 60),
		burst:       perMinute,
		lastCleanup: time.Now(),
	}
}

func (l *RateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Idle buckets refill completely within a minute; dropping all of them
	// hourly bounds the map.
	if time.Since(l.lastCleanup) > time.Hour {
		l.limiters = map[string]*rate.Limiter{}
		l.lastCleanup = time.Now()
	}
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.Allow()
}

// Middleware rejects over-limit clients with 429.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, utils.T(LocaleFrom(c), "rate.limited"))
			}
			return next(c)
		}
	}
}
