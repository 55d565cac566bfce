package middleware

import (
	"time"

	applogger "OrgTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Context keys set by handlers through the response helpers.
const (
	StatusKey = "api_status" // envelope status; the transport status is always 200
	ErrorKey  = "api_error"  // internal cause of a 5xx envelope
)

// APIStatus returns the envelope status of the request, falling back to the transport status.
func APIStatus(c echo.Context) int {
	if s, ok := c.Get(StatusKey).(int); ok {
		return s
	}
	return c.Response().Status
}

// RequestLogging logs one line per request: debug for successes, warn for client errors
// and error for server errors with the internal cause.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := APIStatus(c)
			fields := []applogger.Field{
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", c.Request().RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			switch {
			case status >= 500:
				if cause, ok := c.Get(ErrorKey).(error); ok {
					fields = append(fields, applogger.Error(cause))
				}
				l.Error("http request failed", fields...)
			case status >= 400:
				l.Warn("http request rejected", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
