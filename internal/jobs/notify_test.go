package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/repository/mock"
	"github.com/mantlz/mantlz/internal/worker"
)

type notifyFixture struct {
	store   *mock.Store
	sender  *email.FakeSender
	quota   *fakeQuota
	handler *NotificationHandler
	form    repository.Form
}

func newNotifyFixture(t *testing.T, plan domain.Plan, settings *repository.CreateEmailSettingsParams) *notifyFixture {
	t.Helper()
	f := &notifyFixture{
		store:  newTestStore(midMonth),
		sender: &email.FakeSender{},
		quota:  &fakeQuota{},
	}
	seedUser(t, f.store, "owner", plan)
	f.form = seedForm(t, f.store, "owner")
	if settings != nil {
		settings.ID = uuid.New()
		settings.FormID = f.form.ID
		_, err := f.store.CreateEmailSettings(context.Background(), *settings)
		require.NoError(t, err)
	}
	f.handler = NewNotificationHandler(f.store, newTestMailer(t, f.sender), f.quota, testLogger())
	return f
}

func (f *notifyFixture) handle(t *testing.T, sub repository.Submission) error {
	t.Helper()
	payload, err := json.Marshal(worker.SubmissionNotificationPayload{
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		UserID:       "owner",
	})
	require.NoError(t, err)
	return f.handler.Handle(context.Background(), payload)
}

func logStatuses(store *mock.Store) map[string]string {
	out := make(map[string]string)
	for _, l := range store.NotificationLogs() {
		out[l.Type] = l.Status
	}
	return out
}

func TestNotificationHandler_Type(t *testing.T) {
	h := NewNotificationHandler(nil, nil, nil, testLogger())
	assert.Equal(t, worker.JobTypeSubmissionNotification, h.Type())
}

func TestNotificationHandler_SendsBoth(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, &repository.CreateEmailSettingsParams{
		ConfirmationEnabled: true,
		DeveloperEmail:      domain.ToNullString("dev@example.com"),
		FromEmail:           domain.ToNullString("hello@acme.test"),
	})
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")

	require.NoError(t, f.handle(t, sub))

	confirmation := f.sender.SentTo("jane@example.com")
	require.Len(t, confirmation, 1)
	assert.Equal(t, "hello@acme.test", confirmation[0].From)

	developer := f.sender.SentTo("dev@example.com")
	require.Len(t, developer, 1)
	assert.Equal(t, "jane@example.com", developer[0].ReplyTo)

	assert.Equal(t, map[string]string{
		string(domain.NotificationSubmissionConfirmation): string(domain.NotificationStatusSent),
		string(domain.NotificationDeveloperNotification):  string(domain.NotificationStatusSent),
	}, logStatuses(f.store))
	assert.Equal(t, int64(2), f.quota.emails("owner"))
}

func TestNotificationHandler_FreePlanSkipsDeveloper(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanFree, &repository.CreateEmailSettingsParams{
		ConfirmationEnabled: true,
		DeveloperEmail:      domain.ToNullString("dev@example.com"),
	})
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")

	require.NoError(t, f.handle(t, sub))

	assert.Empty(t, f.sender.SentTo("dev@example.com"))
	assert.Len(t, f.sender.SentTo("jane@example.com"), 1)

	logs := f.store.NotificationLogs()
	require.Len(t, logs, 2)
	for _, l := range logs {
		if l.Type == string(domain.NotificationDeveloperNotification) {
			assert.Equal(t, string(domain.NotificationStatusSkipped), l.Status)
			assert.Equal(t, "developer notifications require a paid plan", l.Error.String)
		}
	}
	assert.Equal(t, int64(1), f.quota.emails("owner"))
}

func TestNotificationHandler_NoSubmitterEmail(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanStandard, &repository.CreateEmailSettingsParams{
		ConfirmationEnabled: true,
	})
	sub := seedSubmission(t, f.store, f.form.ID, "")

	require.NoError(t, f.handle(t, sub))

	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, map[string]string{
		string(domain.NotificationSubmissionConfirmation): string(domain.NotificationStatusSkipped),
	}, logStatuses(f.store))
	assert.Zero(t, f.quota.emails("owner"))
}

func TestNotificationHandler_NoSettings(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, nil)
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")

	require.NoError(t, f.handle(t, sub))
	assert.Empty(t, f.sender.Sent())
	assert.Empty(t, f.store.NotificationLogs())
}

func TestNotificationHandler_SendFailureIsRecorded(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, &repository.CreateEmailSettingsParams{
		ConfirmationEnabled: true,
		DeveloperEmail:      domain.ToNullString("dev@example.com"),
	})
	f.sender.Fail = func(m email.Message) error {
		if m.To == "dev@example.com" {
			return errors.New("connection refused")
		}
		return nil
	}
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")

	require.NoError(t, f.handle(t, sub))

	assert.Equal(t, map[string]string{
		string(domain.NotificationSubmissionConfirmation): string(domain.NotificationStatusSent),
		string(domain.NotificationDeveloperNotification):  string(domain.NotificationStatusFailed),
	}, logStatuses(f.store))
	assert.Equal(t, int64(1), f.quota.emails("owner"))
}

func TestNotificationHandler_PermanentErrors(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, nil)

	err := f.handler.Handle(context.Background(), []byte("{not json"))
	assert.True(t, worker.IsPermanent(err))

	err = f.handle(t, repository.Submission{ID: uuid.New(), FormID: f.form.ID})
	assert.True(t, worker.IsPermanent(err))
}

func TestNotificationHandler_OwnerLookupFailsBeforeAnySend(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, &repository.CreateEmailSettingsParams{
		ConfirmationEnabled: true,
		DeveloperEmail:      domain.ToNullString("dev@example.com"),
	})
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")
	f.store.FailOn("GetUser", func(any) error { return errors.New("connection reset") })

	err := f.handle(t, sub)
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
	assert.Empty(t, f.sender.Sent(), "nothing is sent when the job will be retried")
	assert.Empty(t, f.store.NotificationLogs())

	// The retry sends each email exactly once.
	f.store.FailOn("GetUser", func(any) error { return nil })
	require.NoError(t, f.handle(t, sub))
	assert.Len(t, f.sender.SentTo("jane@example.com"), 1)
	assert.Len(t, f.sender.SentTo("dev@example.com"), 1)
}

func TestNotificationHandler_TransientErrorIsRetried(t *testing.T) {
	f := newNotifyFixture(t, domain.PlanPro, nil)
	sub := seedSubmission(t, f.store, f.form.ID, "jane@example.com")
	f.store.FailOn("GetEmailSettingsByForm", func(any) error { return errors.New("connection reset") })

	err := f.handle(t, sub)
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
}
