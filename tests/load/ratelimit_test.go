//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ledgerline/ledgerline/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestRateLimitSustainedLoad runs 10 goroutines x 100 requests from the same
// org against a rate=10 burst=10 limiter. With 1000 requests completed
// near-instantly, most should be rejected since the bucket starts with 10
// tokens and refills at 10/sec.
func TestRateLimitSustainedLoad(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	handler := rl.Handler(okHandler())

	const goroutines = 10
	const reqsPerGoroutine = 100

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range reqsPerGoroutine {
				req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", http.NoBody)
				req.Header.Set("X-Org-ID", "org-load")
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				switch rec.Code {
				case http.StatusOK:
					ok.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				default:
					t.Errorf("unexpected status %d", rec.Code)
				}
			}
		}()
	}
	wg.Wait()

	total := ok.Load() + limited.Load()
	if total != goroutines*reqsPerGoroutine {
		t.Fatalf("accounted requests = %d, want %d", total, goroutines*reqsPerGoroutine)
	}
	if ok.Load() < 10 {
		t.Errorf("allowed = %d, want at least the burst", ok.Load())
	}
	if limited.Load() < int64(total)/2 {
		t.Errorf("limited = %d of %d, expected the majority to be rejected", limited.Load(), total)
	}
}

// TestRateLimitPerOrgIsolation floods one org and checks another org's
// requests still pass. A noisy tenant must not starve its neighbors.
func TestRateLimitPerOrgIsolation(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	handler := rl.Handler(okHandler())

	noisy := func() {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-Org-ID", "org-noisy")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	for range 200 {
		noisy()
	}

	var rejected int
	for i := range 10 {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-Org-ID", fmt.Sprintf("org-quiet-%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			rejected++
		}
	}
	if rejected != 0 {
		t.Errorf("%d quiet-org requests rejected", rejected)
	}
}
