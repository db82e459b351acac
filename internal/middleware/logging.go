package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mantlz/mantlz/internal/domain"
)

// RequestLoggingMiddleware writes one structured line per request. Query
// values that could carry credentials are redacted first.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
}

func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{logger: logger}
}

// Paths answered too often to be worth a log line. Open pixels fire on every
// email view.
var quietPrefixes = []string{"/health", "/metrics", "/t/open/"}

func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isQuiet(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelWarn
		}
		m.logger.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", sanitizePath(r.URL.Path, r.URL.RawQuery)),
			slog.String("route", r.Pattern),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("ip", domain.ClientIP(r)),
			slog.String("user_agent", r.UserAgent()),
		)
	})
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// statusRecorder captures the status code for the log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Query parameter names whose values never reach the logs. Compared
// case-insensitively.
var sensitiveParams = map[string]bool{
	"apikey":       true,
	"api_key":      true,
	"key":          true,
	"token":        true,
	"access_token": true,
	"secret":       true,
	"signature":    true,
	"code":         true,
}

// sanitizePath rebuilds path?query with sensitive values replaced. Pairs
// without '=' are dropped.
func sanitizePath(path, rawQuery string) string {
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		name, _, ok := strings.Cut(pair, "=")
		switch {
		case !ok:
		case sensitiveParams[strings.ToLower(name)]:
			kept = append(kept, name+"=[REDACTED]")
		default:
			kept = append(kept, pair)
		}
	}
	if len(kept) == 0 {
		return path
	}
	return path + "?" + strings.Join(kept, "&")
}
