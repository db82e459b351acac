// Package auth carries the authenticated principal of a request through its
// context. Middleware sets it; handlers read it. Keeping it apart from both
// avoids an import cycle.
package auth

import (
	"context"

	"github.com/mantlz/mantlz/internal/domain"
)

type contextKey int

const (
	userKey contextKey = iota
	apiKeyKey
)

// GetUser returns the dashboard user set by the identity-token middleware,
// or nil on routes that do not require one.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetAPIKey returns the key a public API request authenticated with, or nil.
// Its UserID names the account whose quota the request draws on.
func GetAPIKey(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(apiKeyKey).(*domain.APIKey)
	return key
}

func SetAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}
