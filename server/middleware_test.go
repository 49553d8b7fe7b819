package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/salulink/authi-claims/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"Metrics", http.MethodGet, "/metrics", 0},
		{"Health", http.MethodGet, "/health", 5},
		{"Create session", http.MethodPost, "/v1/sessions", 10},
		{"Analyze", http.MethodPost, "/v1/sessions/abc/analyze", 50},
		{"Upload", http.MethodPost, "/v1/sessions/abc/documentation/4032/file", 50},
		{"Export", http.MethodPost, "/v1/sessions/abc/export", 100},
		{"Saved case claim", http.MethodGet, "/v1/cases/17/claim", 100},
		{"Save", http.MethodPost, "/v1/sessions/abc/save", 20},
		{"Toggle", http.MethodPost, "/v1/sessions/abc/icd-codes/E11.9", 5},
		{"Conditions", http.MethodGet, "/v1/conditions", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if cost := getTokenCost(req); cost != tt.expectedCost {
				t.Errorf("getTokenCost(%s %s) = %d, want %d", tt.method, tt.path, cost, tt.expectedCost)
			}
		})
	}
}

func TestRealIPMiddleware(t *testing.T) {
	var seen string
	handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "203.0.113.7" {
		t.Errorf("Expected first forwarded IP, got %s", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "192.0.2.1:1234" {
		t.Errorf("Expected RemoteAddr unchanged, got %s", seen)
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     string
		want       int
	}{
		{"Localhost IPv4", "127.0.0.1:5000", "", http.StatusOK},
		{"Localhost IPv6", "[::1]:5000", "", http.StatusOK},
		{"Direct IP", "198.51.100.4:5000", "", http.StatusForbidden},
		{"Through proxy", "198.51.100.4:5000", "203.0.113.7", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				req.Header.Set("X-Forwarded-For", tt.header)
			}
			rr := httptest.NewRecorder()
			BlockDirectAccessMiddleware(okHandler()).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := &config.Config{MaxRequestBody: 16, MaxHeaderSize: 64}
	handler := RequestSizeMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("Within limits", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})

	t.Run("Declared body too large", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 17))))
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413, got %d", rr.Code)
		}
	})

	t.Run("Undeclared body too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
		req.ContentLength = -1
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413 while reading, got %d", rr.Code)
		}
	})

	t.Run("Headers too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Padding", strings.Repeat("p", 80))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestHeaderFieldsTooLarge {
			t.Errorf("Expected 431, got %d", rr.Code)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/conditions", nil)
	req.RemoteAddr = "192.0.2.10:4000"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "1000" {
		t.Errorf("Missing rate limit headers: %v", rr.Header())
	}

	// Drain the bucket
	rl.getBucket(req.RemoteAddr).TakeAvailable(bucketCapacity)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Other clients are unaffected
	other := httptest.NewRequest(http.MethodGet, "/v1/conditions", nil)
	other.RemoteAddr = "192.0.2.11:4000"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for another client, got %d", rr.Code)
	}
}

func TestRateLimiterRemoveFull(t *testing.T) {
	rl := NewRateLimiter()
	rl.getBucket("idle")
	rl.getBucket("busy").TakeAvailable(500)

	if removed := rl.removeFull(); removed != 1 {
		t.Errorf("Expected 1 idle bucket removed, got %d", removed)
	}
	if _, ok := rl.clients["busy"]; !ok {
		t.Error("Busy bucket must be kept")
	}
}
