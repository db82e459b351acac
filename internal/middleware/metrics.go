package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/handler"
)

// MetricsAuthMiddleware guards GET /metrics with HTTP basic auth so the
// scrape output, which includes per-route traffic and cron counters, is not
// public. With no credentials configured it lets every request through.
type MetricsAuthMiddleware struct {
	userHash [sha256.Size]byte
	passHash [sha256.Size]byte
	enabled  bool
}

func NewMetricsAuthMiddleware(username, password string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		userHash: sha256.Sum256([]byte(username)),
		passHash: sha256.Sum256([]byte(password)),
		enabled:  username != "" || password != "",
	}
}

func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			handler.WriteJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compares fixed-length digests so timing does not leak the
// configured credential lengths.
func (m *MetricsAuthMiddleware) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.userHash[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.passHash[:])
	return userOK&passOK == 1
}
