package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
)

func newTestCampaignService(store repository.Store) CampaignService {
	return NewCampaignService(store, domain.FixedClock(testNow), testLogger())
}

func TestCampaignService_Create(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanStandard)
	form := seedForm(t, store, "user_1")

	c, err := newTestCampaignService(store).Create(ctx, domain.CreateCampaignParams{
		UserID:         "user_1",
		FormID:         form.ID,
		Name:           "Launch",
		Subject:        "We are live",
		Content:        "Hello there",
		RecipientCount: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignStatusDraft, c.Status)
	assert.Equal(t, 200, c.RecipientLimit)
	assert.Equal(t, int32(1), store.QuotasFor("user_1")[0].CampaignCount)
}

func TestCampaignService_Create_GateReasons(t *testing.T) {
	tests := []struct {
		name       string
		plan       domain.Plan
		existing   int64
		recipients int
		want       domain.QuotaReason
	}{
		{"free plan", domain.PlanFree, 0, 1, domain.QuotaReasonCampaignsDisabled},
		{"monthly limit", domain.PlanStandard, 3, 1, domain.QuotaReasonCampaignLimit},
		{"recipients", domain.PlanStandard, 0, 501, domain.QuotaReasonRecipientLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			seedUser(t, store, "user_1", tt.plan)
			form := seedForm(t, store, "user_1")
			seedQuota(t, store, "user_1", domain.PeriodOf(testNow), domain.QuotaDelta{Campaigns: tt.existing})

			_, err := newTestCampaignService(store).Create(context.Background(), domain.CreateCampaignParams{
				UserID:         "user_1",
				FormID:         form.ID,
				Name:           "n",
				Subject:        "s",
				Content:        "c",
				RecipientCount: tt.recipients,
			})
			reason, ok := domain.QuotaReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, reason)
			assert.Zero(t, store.CountsFor("user_1").Campaigns)
			assert.Equal(t, int32(tt.existing), store.QuotasFor("user_1")[0].CampaignCount)
		})
	}
}

func TestCampaignService_Create_ForeignForm(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanPro)
	seedUser(t, store, "user_2", domain.PlanPro)
	form := seedForm(t, store, "user_2")

	_, err := newTestCampaignService(store).Create(context.Background(), domain.CreateCampaignParams{
		UserID: "user_1", FormID: form.ID, Name: "n", Subject: "s", Content: "c",
	})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestCampaignService_Schedule(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanStandard)
	form := seedForm(t, store, "user_1")
	svc := newTestCampaignService(store)

	c, err := svc.Create(ctx, domain.CreateCampaignParams{
		UserID: "user_1", FormID: form.ID, Name: "n", Subject: "s", Content: "c",
	})
	require.NoError(t, err)

	_, err = svc.Schedule(ctx, domain.ScheduleCampaignParams{ID: c.ID, UserID: "user_1", ScheduledAt: testNow.Add(-time.Minute)})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	at := testNow.Add(time.Hour)
	scheduled, err := svc.Schedule(ctx, domain.ScheduleCampaignParams{ID: c.ID, UserID: "user_1", ScheduledAt: at})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledAt)
	assert.True(t, at.Equal(*scheduled.ScheduledAt))

	_, err = svc.Schedule(ctx, domain.ScheduleCampaignParams{ID: c.ID, UserID: "user_1", ScheduledAt: at})
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestCampaignService_Schedule_RequiresFeature(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)

	_, err := newTestCampaignService(store).Schedule(context.Background(), domain.ScheduleCampaignParams{
		UserID: "user_1", ScheduledAt: testNow.Add(time.Hour),
	})
	reason, ok := domain.QuotaReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.QuotaReasonFeatureUnavailable, reason)
}
