package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/handler"
)

// CronAuthMiddleware guards scheduler-triggered job endpoints with a shared
// bearer secret.
type CronAuthMiddleware struct {
	secret string
	logger *slog.Logger
}

// NewCronAuthMiddleware creates the cron guard. An empty secret rejects
// every request.
func NewCronAuthMiddleware(secret string, logger *slog.Logger) *CronAuthMiddleware {
	return &CronAuthMiddleware{secret: secret, logger: logger}
}

// Handler returns middleware that requires "Authorization: Bearer <secret>".
func (m *CronAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || m.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.secret)) != 1 {
			m.logger.Warn("unauthorized cron request", "path", r.URL.Path, "ip", domain.ClientIP(r))
			handler.WriteJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
