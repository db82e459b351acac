// Package middleware contains HTTP middleware for the Mantlz API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mantlz/mantlz/internal/auth"
	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/handler"
	"github.com/mantlz/mantlz/internal/service"
)

const (
	// APIKeyHeader carries a public API key.
	APIKeyHeader = "X-API-Key"

	// APIKeyQueryParam is the query fallback for clients that cannot set headers.
	APIKeyQueryParam = "apiKey"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware authenticates dashboard users and public API keys.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier TokenVerifier
	users    service.UserService
	apiKeys  service.APIKeyService
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - verifier: Validates identity provider access tokens
// - users: Mirrors token subjects into local users
// - apiKeys: Resolves raw API keys
// - logger: Structured logger for auth events
func NewAuthMiddleware(verifier TokenVerifier, users service.UserService, apiKeys service.APIKeyService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		apiKeys:  apiKeys,
		logger:   logger,
	}
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires a valid identity provider token.
//
// This middleware:
// 1. Reads the bearer token from the Authorization header
// 2. Verifies signature, issuer, audience and expiry
// 3. Creates the local user on first sight (FREE plan)
// 4. Stores the user in the request context
//
// The user can be retrieved in handlers using:
//
//	user := auth.GetUser(r.Context())
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("rejected identity token", "error", err, "path", r.URL.Path)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		user, err := m.users.EnsureUser(r.Context(), domain.EnsureUserParams{
			ID:        claims.Subject,
			Email:     claims.Email,
			FirstName: claims.FirstName,
			LastName:  claims.LastName,
		})
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// =============================================================================
// RequireAPIKey Middleware
// =============================================================================

// RequireAPIKey is middleware for the public API. The key is read from the
// X-API-Key header, falling back to the apiKey query parameter.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := apiKeyFromRequest(r)
		if raw == "" {
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", "API key required"))
			return
		}

		key, err := m.apiKeys.Authenticate(r.Context(), raw)
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetAPIKey(r.Context(), key)))
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func apiKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(APIKeyHeader)); k != "" {
		return k
	}
	return strings.TrimSpace(r.URL.Query().Get(APIKeyQueryParam))
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(authMw.RequireAPIKey, limiter.Limit)
//	apiHandler.RegisterRoutes(mux, stack)
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Compile-time checks
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAPIKey
)
