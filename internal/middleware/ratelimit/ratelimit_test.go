package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) *Limiter {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	return rl
}

func TestAllowWithinLimit(t *testing.T) {
	rl := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected below the limit", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request above the limit allowed")
	}
	// A different client has its own window.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("unrelated client rejected")
	}

	m := rl.GetMetrics()
	if m.TotalHits != 1 {
		t.Errorf("TotalHits = %d, want 1", m.TotalHits)
	}
	if m.ClientCount != 2 {
		t.Errorf("ClientCount = %d, want 2", m.ClientCount)
	}
}

func TestWindowResets(t *testing.T) {
	rl := newTestLimiter(t, 1)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("second request in the same window allowed")
	}

	// Age the window past a minute; the next request starts a new one.
	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastRequest = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("request after window expiry rejected")
	}
}

func TestCleanupDropsStaleClients(t *testing.T) {
	rl := newTestLimiter(t, 10)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastRequest = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanupStaleEntries()

	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients after cleanup = %d, want 1", got)
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	rl := newTestLimiter(t, 1)

	handler := rl.Middleware(
		func(r *http.Request) string { return "10.0.0.1" },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d, want 204", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want %q", second.Header().Get("Retry-After"), "60")
	}
}

func TestMiddlewareCustomOnLimit(t *testing.T) {
	rl := newTestLimiter(t, 1)

	handler := rl.Middleware(
		func(r *http.Request) string { return "10.0.0.1" },
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusServiceUnavailable)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 from custom onLimit", rec.Code)
	}
}
