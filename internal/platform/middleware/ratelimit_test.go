package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func limited(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
}

// hit runs one request through h as user (empty for anonymous) and returns
// the recorder and the HTTP status of any error.
func hit(t *testing.T, h echo.HandlerFunc, user string) (*httptest.ResponseRecorder, int) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/records", nil), rec)
	if user != "" {
		c.Set("user_id", user)
	}
	err := h(c)
	if err == nil {
		return rec, rec.Code
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	return rec, he.Code
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	for i := 0; i < 5; i++ {
		rec, code := hit(t, h, "")
		if code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i+1, code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("expected X-RateLimit-Limit 10, got %q", got)
		}
	}
}

func TestRateLimit_DeniesPastBurst(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})
	hit(t, h, "")
	hit(t, h, "")

	rec, code := hit(t, h, "")
	if code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}
}

func TestRateLimit_UsersHaveSeparateBuckets(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})

	if _, code := hit(t, h, "clinician-a"); code != http.StatusNoContent {
		t.Fatalf("first request for a: expected 204, got %d", code)
	}
	if _, code := hit(t, h, "clinician-a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for a: expected 429, got %d", code)
	}
	if _, code := hit(t, h, "clinician-b"); code != http.StatusNoContent {
		t.Errorf("first request for b: expected 204, got %d", code)
	}
	if _, code := hit(t, h, ""); code != http.StatusNoContent {
		t.Errorf("anonymous request: expected its own bucket, got %d", code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		rps  float64
		want int
	}{
		{0, 1},
		{-1, 1},
		{20, 1},
		{1, 1},
		{0.5, 2},
		{0.3, 4},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.rps); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.rps, got, tt.want)
		}
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 20 || cfg.BurstSize != 40 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ExpiresIn <= 0 {
		t.Errorf("expected idle limiters to expire, got %s", cfg.ExpiresIn)
	}
}
