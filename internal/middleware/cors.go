package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS returns CORS middleware for browser clients of the public API and
// dashboard. An empty origin list allows any origin without credentials.
func NewCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", APIKeyHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         600,
	}
	if len(allowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowCredentials = true
	}
	return cors.New(opts).Handler
}
