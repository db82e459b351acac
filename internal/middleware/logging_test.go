package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func loggedRequest(t *testing.T, req *http.Request, status int) string {
	t.Helper()
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	mw.Handler(next).ServeHTTP(httptest.NewRecorder(), req)
	return buf.String()
}

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forms/list", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.195, 10.0.0.1")
	req.Header.Set("User-Agent", "mantlz-sdk/1.0")

	out := loggedRequest(t, req, http.StatusOK)

	for _, want := range []string{"GET", "/api/v1/forms/list", "status=200", "duration_ms", "203.0.113.195", "mantlz-sdk/1.0", "level=INFO"} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %q, got: %s", want, out)
		}
	}
}

func TestRequestLoggingMiddleware_ServerErrorsWarn(t *testing.T) {
	out := loggedRequest(t, httptest.NewRequest(http.MethodPost, "/api/cron/reset-quotas", nil), http.StatusInternalServerError)

	if !strings.Contains(out, "level=WARN") {
		t.Errorf("5xx should log at warn, got: %s", out)
	}
	if !strings.Contains(out, "status=500") {
		t.Errorf("log should contain 500 status, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_RedactsSensitiveQueryParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
		secret string
		keep   string
	}{
		{"api key", "/api/v1/forms/list?apiKey=mk_live_abc123&limit=10", "mk_live_abc123", "limit=10"},
		{"api key snake case", "/api/v1/forms/list?api_key=mk_live_abc123", "mk_live_abc123", "api_key=[REDACTED]"},
		{"mixed case", "/api/v1/forms/list?APIKEY=mk_live_abc123", "mk_live_abc123", "APIKEY=[REDACTED]"},
		{"token", "/callback?token=secrettoken123", "secrettoken123", "/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := loggedRequest(t, httptest.NewRequest(http.MethodGet, tt.target, nil), http.StatusOK)

			if strings.Contains(out, tt.secret) {
				t.Errorf("log should not contain %q, got: %s", tt.secret, out)
			}
			if !strings.Contains(out, tt.keep) {
				t.Errorf("log should contain %q, got: %s", tt.keep, out)
			}
		})
	}
}

func TestRequestLoggingMiddleware_PassesRequestThrough(t *testing.T) {
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("response body"))
	})

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/forms", nil))

	if !handlerCalled {
		t.Error("handler should have been called")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Custom") != "value" {
		t.Error("custom header should be preserved")
	}
	if rec.Body.String() != "response body" {
		t.Errorf("response body should be preserved, got: %s", rec.Body.String())
	}
}

func TestRequestLoggingMiddleware_SkipsNoisyPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/t/open/4f1c7a52-2d0e-4b8e-9c1a-0c6b1d2e3f40"} {
		out := loggedRequest(t, httptest.NewRequest(http.MethodGet, path, nil), http.StatusOK)
		if out != "" {
			t.Errorf("%s should not be logged, got: %s", path, out)
		}
	}
}
