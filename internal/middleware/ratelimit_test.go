package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Error("request over the limit should be denied")
	}

	// Other keys are unaffected.
	if !rl.Allow("ip:5.6.7.8") {
		t.Error("a different key should not share the window")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(50*time.Millisecond, 1)

	if !rl.Allow("k") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("second request inside the window should be denied")
	}

	time.Sleep(60 * time.Millisecond)

	if !rl.Allow("k") {
		t.Error("request after the window has passed should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	handler := RateLimitMiddleware(rl, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1111"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got %d, want 429", rec.Code)
	}
}

func TestGetIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if got := GetIPKey(req); got != "ip:10.0.0.1:5000" {
		t.Errorf("GetIPKey = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := GetIPKey(req); got != "ip:203.0.113.7" {
		t.Errorf("GetIPKey with X-Forwarded-For = %q, want first hop", got)
	}
}
