package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	lim := NewLimiter(2, 1)
	lim.now = func() time.Time { return now }

	if !lim.Allow("a") || !lim.Allow("a") {
		t.Fatalf("expected burst of two")
	}
	if lim.Allow("a") {
		t.Fatalf("expected third call to be limited")
	}
	if !lim.Allow("b") {
		t.Fatalf("keys must not share a bucket")
	}

	now = now.Add(time.Second)
	if !lim.Allow("a") {
		t.Fatalf("expected a token after one second")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(NewLimiter(1, 0), nil))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}
