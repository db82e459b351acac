package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/repository"
)

func TestWarningJob_SkipsOtherDays(t *testing.T) {
	store := newTestStore(midMonth)
	sender := &email.FakeSender{}
	seedUser(t, store, "user_a", domain.PlanFree)
	seedQuota(t, store, "user_a", march, 45, 1, 0)

	job := NewWarningJob(store, newTestMailer(t, sender), 0, domain.FixedClock(midMonth), testLogger())
	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, WarningSummary{}, summary)
	assert.Zero(t, store.Calls("ListWarningCandidates"))
	assert.Empty(t, sender.Sent())
}

func TestWarningJob_Threshold(t *testing.T) {
	store := newTestStore(warningDay)
	sender := &email.FakeSender{}

	// 10% of the free limit exactly is not enough to warn.
	seedUser(t, store, "at_threshold", domain.PlanFree)
	seedQuota(t, store, "at_threshold", march, 5, 1, 0)
	seedUser(t, store, "above_threshold", domain.PlanFree)
	seedQuota(t, store, "above_threshold", march, 6, 1, 0)
	seedUser(t, store, "idle", domain.PlanFree)
	seedQuota(t, store, "idle", march, 0, 1, 0)

	job := NewWarningJob(store, newTestMailer(t, sender), 0, domain.FixedClock(warningDay), testLogger())
	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, WarningSummary{Processed: 2, EmailsSent: 1, Skipped: 1}, summary)
	assert.Empty(t, sender.SentTo("at_threshold@example.com"))
	assert.Empty(t, sender.SentTo("idle@example.com"))

	sent := sender.SentTo("above_threshold@example.com")
	require.Len(t, sent, 1)
	assert.Equal(t, "Your Mantlz data resets in 2 days", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "6 of 50 submissions (12%)")
	assert.Contains(t, sent[0].Text, "April 1, 2024")
}

func TestWarningJob_UsesPlanLimit(t *testing.T) {
	store := newTestStore(warningDay)
	sender := &email.FakeSender{}

	// 400 of the standard plan's 5000 is 8%.
	seedUser(t, store, "standard", domain.PlanStandard)
	seedQuota(t, store, "standard", march, 400, 2, 0)
	seedUser(t, store, "pro", domain.PlanPro)
	seedQuota(t, store, "pro", march, 1200, 3, 1)

	job := NewWarningJob(store, newTestMailer(t, sender), 0, domain.FixedClock(warningDay), testLogger())
	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, WarningSummary{Processed: 2, EmailsSent: 1, Skipped: 1}, summary)
	assert.Len(t, sender.SentTo("pro@example.com"), 1)
}

func TestWarningJob_FailuresAreCounted(t *testing.T) {
	store := newTestStore(warningDay)
	sender := &email.FakeSender{Fail: func(m email.Message) error {
		if m.To == "broken@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}}

	_, err := store.UpsertUser(context.Background(), repository.UpsertUserParams{
		ID:    "legacy",
		Email: "legacy@example.com",
		Plan:  "ENTERPRISE",
	})
	require.NoError(t, err)
	seedQuota(t, store, "legacy", march, 30, 1, 0)
	seedUser(t, store, "broken", domain.PlanFree)
	seedQuota(t, store, "broken", march, 40, 1, 0)
	seedUser(t, store, "ok", domain.PlanFree)
	seedQuota(t, store, "ok", march, 20, 1, 0)

	job := NewWarningJob(store, newTestMailer(t, sender), 0, domain.FixedClock(warningDay), testLogger())
	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, WarningSummary{Processed: 3, EmailsSent: 1, EmailsFailed: 2}, summary)
	assert.Len(t, sender.SentTo("ok@example.com"), 1)
}

func TestWarningJob_ListError(t *testing.T) {
	store := newTestStore(warningDay)
	store.FailOn("ListWarningCandidates", func(any) error { return errors.New("db down") })

	job := NewWarningJob(store, newTestMailer(t, &email.FakeSender{}), 0, domain.FixedClock(warningDay), testLogger())
	_, err := job.Run(context.Background())
	assert.ErrorContains(t, err, "db down")
}
