// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UserService manages tenants. Users are created by the identity provider;
// this service only mirrors them and owns the plan column.
type UserService interface {
	// GetByID retrieves a user by identity provider subject.
	// Returns domain.ENOTFOUND if the user does not exist.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// EnsureUser creates the user on FREE if absent, refreshing the
	// identity fields otherwise. The plan of an existing user is untouched.
	EnsureUser(ctx context.Context, params domain.EnsureUserParams) (*domain.User, error)

	// UpdatePlan sets the user's plan and the cached quota limit.
	UpdatePlan(ctx context.Context, id string, plan domain.Plan) error

	// GetByStripeCustomerID retrieves the user linked to a Stripe customer.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)

	// LinkStripeCustomer stores the Stripe customer id on the user.
	LinkStripeCustomer(ctx context.Context, id, customerID string) error
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(store repository.Store, logger *slog.Logger) UserService {
	return &userService{
		store:  store,
		logger: logger,
	}
}

// GetByID retrieves a user by identity provider subject.
func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const op = "UserService.GetByID"

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", id)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}
	return repoUserToDomain(u)
}

// EnsureUser creates or refreshes a user from identity claims.
func (s *userService) EnsureUser(ctx context.Context, params domain.EnsureUserParams) (*domain.User, error) {
	const op = "UserService.EnsureUser"

	id := strings.TrimSpace(params.ID)
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if id == "" {
		return nil, domain.Invalid(op, "User id is required")
	}
	if email == "" {
		return nil, domain.Invalid(op, "Email is required")
	}

	free, err := domain.GetQuotaByPlan(domain.PlanFree)
	if err != nil {
		return nil, domain.Internal(err, op, "No limits for default plan")
	}

	u, err := s.store.UpsertUser(ctx, repository.UpsertUserParams{
		ID:         id,
		Email:      email,
		FirstName:  toNullString(params.FirstName),
		LastName:   toNullString(params.LastName),
		Plan:       string(domain.PlanFree),
		QuotaLimit: int32(free.MaxSubmissionsPerMonth),
	})
	if err != nil {
		s.logger.Error("failed to upsert user", "error", err, "op", op, "user_id", id)
		return nil, domain.Internal(err, op, "Failed to save user")
	}
	return repoUserToDomain(u)
}

// UpdatePlan sets the user's plan and the cached quota limit.
func (s *userService) UpdatePlan(ctx context.Context, id string, plan domain.Plan) error {
	const op = "UserService.UpdatePlan"

	limits, err := domain.GetQuotaByPlan(plan)
	if err != nil {
		return domain.Invalid(op, "Unknown plan")
	}

	if _, err := s.store.GetUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", id)
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	if err := s.store.UpdateUserPlan(ctx, repository.UpdateUserPlanParams{
		ID:         id,
		Plan:       string(plan),
		QuotaLimit: int32(limits.MaxSubmissionsPerMonth),
	}); err != nil {
		s.logger.Error("failed to update plan", "error", err, "op", op, "user_id", id)
		return domain.Internal(err, op, "Failed to update plan")
	}

	s.logger.Info("user plan updated", "user_id", id, "plan", plan)
	return nil
}

// GetByStripeCustomerID retrieves the user linked to a Stripe customer.
func (s *userService) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	const op = "UserService.GetByStripeCustomerID"

	u, err := s.store.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", customerID)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}
	return repoUserToDomain(u)
}

// LinkStripeCustomer stores the Stripe customer id on the user.
func (s *userService) LinkStripeCustomer(ctx context.Context, id, customerID string) error {
	const op = "UserService.LinkStripeCustomer"

	if strings.TrimSpace(customerID) == "" {
		return domain.Invalid(op, "Customer id is required")
	}
	if err := s.store.UpdateUserStripeCustomer(ctx, repository.UpdateUserStripeCustomerParams{
		ID:               id,
		StripeCustomerID: toNullString(customerID),
	}); err != nil {
		return domain.Internal(err, op, "Failed to link customer")
	}
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// repoUserToDomain converts a repository.User to domain.User.
//
// A plan value outside the catalog is reported rather than defaulted.
func repoUserToDomain(u repository.User) (*domain.User, error) {
	plan, err := domain.ParsePlan(u.Plan)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        domain.NullStringValue(u.FirstName),
		LastName:         domain.NullStringValue(u.LastName),
		Plan:             plan,
		QuotaLimit:       int(u.QuotaLimit),
		StripeCustomerID: domain.NullStringValue(u.StripeCustomerID),
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}, nil
}

// toNullString converts an optional string to sql.NullString.
func toNullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
