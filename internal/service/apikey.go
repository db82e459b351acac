package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
)

// APIKeyBcryptCost is the bcrypt cost for API key hashes. Tests lower it.
var APIKeyBcryptCost = 12

// APIKeyService issues and verifies API keys for the public API.
type APIKeyService interface {
	// Create issues a new key. The raw key is only available on the result.
	Create(ctx context.Context, userID, name string) (*domain.CreatedAPIKey, error)

	// Authenticate resolves a raw key to its key record.
	// Returns domain.EUNAUTHORIZED for unknown or malformed keys.
	Authenticate(ctx context.Context, rawKey string) (*domain.APIKey, error)
}

type apiKeyService struct {
	store  repository.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(store repository.Store, clock domain.Clock, logger *slog.Logger) APIKeyService {
	return &apiKeyService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Create issues a new key for the user.
func (s *apiKeyService) Create(ctx context.Context, userID, name string) (*domain.CreatedAPIKey, error) {
	const op = "APIKeyService.Create"

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default"
	}
	if len(name) > 100 {
		return nil, domain.Invalid(op, "Name must be 100 characters or less")
	}

	raw, err := domain.GenerateAPIKey()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate key")
	}
	prefix, _ := domain.APIKeyLookup(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), APIKeyBcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash key")
	}

	row, err := s.store.CreateAPIKey(ctx, repository.CreateAPIKeyParams{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    name,
		Prefix:  prefix,
		KeyHash: string(hash),
	})
	if err != nil {
		s.logger.Error("failed to create api key", "error", err, "op", op, "user_id", userID)
		return nil, domain.Internal(err, op, "Failed to create API key")
	}

	s.logger.Info("api key created", "api_key_id", row.ID, "user_id", userID)
	return &domain.CreatedAPIKey{
		APIKey: repoAPIKeyToDomain(row),
		RawKey: raw,
	}, nil
}

// Authenticate compares the raw key against every key sharing its prefix.
func (s *apiKeyService) Authenticate(ctx context.Context, rawKey string) (*domain.APIKey, error) {
	const op = "APIKeyService.Authenticate"

	prefix, ok := domain.APIKeyLookup(strings.TrimSpace(rawKey))
	if !ok {
		return nil, domain.Unauthorized(op, "Invalid API key")
	}

	candidates, err := s.store.ListAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to look up API key")
	}
	for _, c := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(c.KeyHash), []byte(rawKey)) != nil {
			continue
		}
		if err := s.store.TouchAPIKey(ctx, repository.TouchAPIKeyParams{
			ID:         c.ID,
			LastUsedAt: s.clock.Now(),
		}); err != nil {
			s.logger.Warn("failed to touch api key", "error", err, "api_key_id", c.ID)
		}
		key := repoAPIKeyToDomain(c)
		return &key, nil
	}
	return nil, domain.Unauthorized(op, "Invalid API key")
}

func repoAPIKeyToDomain(k repository.ApiKey) domain.APIKey {
	return domain.APIKey{
		ID:         k.ID,
		UserID:     k.UserID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		KeyHash:    k.KeyHash,
		LastUsedAt: domain.NullTimeValue(k.LastUsedAt),
		CreatedAt:  k.CreatedAt,
	}
}
