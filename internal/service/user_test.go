package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
)

func TestUserService_EnsureUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewUserService(store, testLogger())

	u, err := svc.EnsureUser(ctx, domain.EnsureUserParams{ID: "user_1", Email: " Jane@Example.com ", FirstName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, u.Plan)
	assert.Equal(t, 50, u.QuotaLimit)
	assert.Equal(t, "jane@example.com", u.Email)
	assert.Equal(t, "Jane", u.DisplayName())

	require.NoError(t, svc.UpdatePlan(ctx, "user_1", domain.PlanPro))

	// A later sign-in keeps the paid plan.
	u, err = svc.EnsureUser(ctx, domain.EnsureUserParams{ID: "user_1", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, u.Plan)
	assert.Equal(t, 10000, u.QuotaLimit)
	assert.Equal(t, "Jane", u.FirstName)
}

func TestUserService_EnsureUser_Validation(t *testing.T) {
	svc := NewUserService(newTestStore(), testLogger())

	_, err := svc.EnsureUser(context.Background(), domain.EnsureUserParams{Email: "a@example.com"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.EnsureUser(context.Background(), domain.EnsureUserParams{ID: "user_1"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestUserService_UpdatePlan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	svc := NewUserService(store, testLogger())

	assert.Equal(t, domain.EINVALID, domain.ErrorCode(svc.UpdatePlan(ctx, "user_1", "GOLD")))
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(svc.UpdatePlan(ctx, "ghost", domain.PlanPro)))

	require.NoError(t, svc.UpdatePlan(ctx, "user_1", domain.PlanStandard))
	u, err := svc.GetByID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStandard, u.Plan)
	assert.Equal(t, 5000, u.QuotaLimit)
}

func TestUserService_StripeCustomer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	svc := NewUserService(store, testLogger())

	_, err := svc.GetByStripeCustomerID(ctx, "cus_123")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	require.NoError(t, svc.LinkStripeCustomer(ctx, "user_1", "cus_123"))
	u, err := svc.GetByStripeCustomerID(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
}
