package middleware

import (
	"net/http"
	"sync"
	"time"

	applogger "OrgTrader/pkg/logger"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu       sync.Mutex
	burst    int
	perSec   rate.Limit
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewLimiter(burst, perSec float64) *Limiter {
	return &Limiter{
		burst:    int(burst),
		perSec:   rate.Limit(perSec),
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// RateLimit rejects requests beyond the per client IP budget with 429.
func RateLimit(lim *Limiter, l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !lim.Allow(ip) {
				if l != nil {
					l.Warn("http rate limited", applogger.String("remote", ip), applogger.String("path", c.Path()))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
