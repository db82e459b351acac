// Package domain contains core business types and interfaces.
//
// This file defines API key types for the public /api/v1 surface.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// API Key Configuration Constants
// =============================================================================

const (
	// APIKeyPrefix marks a string as a Mantlz API key.
	APIKeyPrefix = "mk_"

	// APIKeyBytes is the number of random bytes in a key.
	APIKeyBytes = 24

	// APIKeyLookupLength is how many leading characters of the raw key are
	// stored in clear for lookup.
	APIKeyLookupLength = 12
)

// APIKey authorizes calls to the public API on behalf of a user.
//
// Security model:
// - Raw key is shown to the user once at creation
// - Only a bcrypt hash is stored, plus a short clear prefix for lookup
// - LastUsedAt is updated on each successful authentication
type APIKey struct {
	ID         uuid.UUID
	UserID     string
	Name       string
	Prefix     string
	KeyHash    string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// CreatedAPIKey is returned once, when a key is created.
type CreatedAPIKey struct {
	APIKey
	RawKey string
}

// GenerateAPIKey returns a new raw API key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, APIKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}

// APIKeyLookup returns the clear lookup prefix of a raw key, or false when
// the key is malformed.
func APIKeyLookup(raw string) (string, bool) {
	if !strings.HasPrefix(raw, APIKeyPrefix) || len(raw) <= APIKeyLookupLength {
		return "", false
	}
	return raw[:APIKeyLookupLength], true
}
