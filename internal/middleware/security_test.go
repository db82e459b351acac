package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func securityHeaders(isSecure bool) http.Header {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(isSecure).Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quota", nil))
	return rec.Header()
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	h := securityHeaders(false)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	}
	for _, tc := range tests {
		if got := h.Get(tc.header); got != tc.expected {
			t.Errorf("%s: expected %q, got %q", tc.header, tc.expected, got)
		}
	}

	if h.Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should not be set outside production")
	}
}

func TestSecurityHeadersMiddleware_HSTSInProduction(t *testing.T) {
	hsts := securityHeaders(true).Get("Strict-Transport-Security")
	if !strings.Contains(hsts, "max-age=31536000") {
		t.Errorf("expected one year HSTS, got %q", hsts)
	}
}

func TestSecurityHeadersMiddleware_CSPDeniesByDefault(t *testing.T) {
	csp := securityHeaders(false).Get("Content-Security-Policy")

	for _, directive := range []string{"default-src 'none'", "frame-ancestors 'none'", "img-src 'self' data:"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP should contain %q, got %q", directive, csp)
		}
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("CSP should not allow scripts, got %q", csp)
	}
}
