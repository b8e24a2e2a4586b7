package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slidebanai/slidebanai/backend-go/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitThrottlesPerClient(t *testing.T) {
	limiters := ratelimit.NewPerClient(0.001, 2)
	defer limiters.Stop()
	handler := RateLimit(limiters)(okHandler())

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/presentations", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("10.0.0.1:1000") != http.StatusOK || do("10.0.0.1:1000") != http.StatusOK {
		t.Fatal("requests within the burst should pass")
	}
	if got := do("10.0.0.1:1000"); got != http.StatusTooManyRequests {
		t.Fatalf("request past the burst = %d, want 429", got)
	}
	// Another address is a separate bucket.
	if got := do("10.0.0.2:1000"); got != http.StatusOK {
		t.Fatalf("other client = %d, want 200", got)
	}
}

func TestRateLimitHonorsForwardedFor(t *testing.T) {
	limiters := ratelimit.NewPerClient(0.001, 1)
	defer limiters.Stop()
	handler := RateLimit(limiters)(okHandler())

	do := func(fwd string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/presentations", nil)
		req.RemoteAddr = "127.0.0.1:9999" // the proxy
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("203.0.113.5") != http.StatusOK {
		t.Fatal("first request should pass")
	}
	if do("203.0.113.5, 127.0.0.1") != http.StatusTooManyRequests {
		t.Fatal("same forwarded client should share one bucket")
	}
	if do("203.0.113.9") != http.StatusOK {
		t.Fatal("different forwarded client should not be throttled")
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/presentations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS("http://localhost:5173")(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/presentations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("allowed origin should be echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/presentations", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin must not be allowed")
	}
}
