package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/repository/mock"
)

func seedSentEmail(t *testing.T, store *mock.Store, userID string) (repository.SentEmail, repository.Submission) {
	t.Helper()
	ctx := context.Background()
	form := seedForm(t, store, userID)
	sub, err := store.CreateSubmission(ctx, repository.CreateSubmissionParams{
		ID:        uuid.New(),
		FormID:    form.ID,
		Data:      []byte(`{"email":"jane@example.com"}`),
		Email:     domain.ToNullString("jane@example.com"),
		CreatedAt: testNow,
	})
	require.NoError(t, err)
	sent, err := store.CreateSentEmail(ctx, repository.CreateSentEmailParams{
		ID:           uuid.New(),
		CampaignID:   uuid.New(),
		RecipientID:  uuid.New(),
		SubmissionID: sub.ID,
		UserID:       userID,
	})
	require.NoError(t, err)
	return sent, sub
}

func newTestTrackingService(store *mock.Store) TrackingService {
	clock := domain.FixedClock(testNow)
	return NewTrackingService(store, NewQuotaService(store, clock, testLogger()), clock, testLogger())
}

func TestTrackingService_FirstEventCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanPro)
	sent, _ := seedSentEmail(t, store, "user_1")
	svc := newTestTrackingService(store)

	require.NoError(t, svc.RecordOpen(ctx, sent.ID))
	require.NoError(t, svc.RecordOpen(ctx, sent.ID))
	require.NoError(t, svc.RecordClick(ctx, sent.ID))
	require.NoError(t, svc.RecordClick(ctx, sent.ID))

	rows := store.QuotasFor("user_1")
	require.Len(t, rows, 1)
	assert.Equal(t, int32(1), rows[0].EmailsOpened)
	assert.Equal(t, int32(1), rows[0].EmailsClicked)
}

func TestTrackingService_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestTrackingService(newTestStore())

	err := svc.RecordOpen(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	err = svc.Unsubscribe(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestTrackingService_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanPro)
	sent, sub := seedSentEmail(t, store, "user_1")
	svc := newTestTrackingService(store)

	require.NoError(t, svc.Unsubscribe(ctx, sent.ID))

	got, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Unsubscribed)
}
