package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/repository/mock"
)

func TestMain(m *testing.M) {
	APIKeyBcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// testNow is mid-month so period arithmetic is unambiguous.
var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore() *mock.Store {
	store := mock.New()
	store.Now = func() time.Time { return testNow }
	return store
}

func seedUser(t *testing.T, store *mock.Store, id string, plan domain.Plan) {
	t.Helper()
	ctx := context.Background()
	limits, err := domain.GetQuotaByPlan(plan)
	require.NoError(t, err)
	_, err = store.UpsertUser(ctx, repository.UpsertUserParams{
		ID:         id,
		Email:      id + "@example.com",
		Plan:       string(plan),
		QuotaLimit: int32(limits.MaxSubmissionsPerMonth),
	})
	require.NoError(t, err)
}

func seedForm(t *testing.T, store *mock.Store, userID string) repository.Form {
	t.Helper()
	f, err := store.CreateForm(context.Background(), repository.CreateFormParams{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     "Contact",
		FormType: string(domain.FormTypeContact),
	})
	require.NoError(t, err)
	return f
}

// seedQuota creates the current period row with the given counters.
func seedQuota(t *testing.T, store *mock.Store, userID string, period domain.Period, delta domain.QuotaDelta) {
	t.Helper()
	ctx := context.Background()
	_, err := ensureQuota(ctx, store, userID, period)
	require.NoError(t, err)
	require.NoError(t, incrementQuota(ctx, store, userID, period, delta))
}
