package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/repository/mock"
)

var (
	resetDay   = time.Date(2024, time.April, 1, 6, 0, 0, 0, time.UTC)
	warningDay = time.Date(2024, time.March, 30, 9, 0, 0, 0, time.UTC)
	midMonth   = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	march      = domain.Period{Year: 2024, Month: time.March}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(now time.Time) *mock.Store {
	store := mock.New()
	store.Now = func() time.Time { return now }
	return store
}

var testSigner = email.NewLinkSigner("test-tracking-secret")

func newTestMailer(t *testing.T, sender email.Sender) *email.Mailer {
	t.Helper()
	m, err := email.NewMailer(sender, "https://mantlz.test", testSigner, testLogger())
	require.NoError(t, err)
	return m
}

// fakeQuota records quota deltas per user.
type fakeQuota struct {
	mu     sync.Mutex
	deltas map[string]domain.QuotaDelta
	err    error
}

func (f *fakeQuota) UpdateQuota(ctx context.Context, userID string, delta domain.QuotaDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.deltas == nil {
		f.deltas = make(map[string]domain.QuotaDelta)
	}
	d := f.deltas[userID]
	d.Emails += delta.Emails
	f.deltas[userID] = d
	return nil
}

func (f *fakeQuota) emails(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deltas[userID].Emails
}

func seedUser(t *testing.T, store *mock.Store, id string, plan domain.Plan) {
	t.Helper()
	_, err := store.UpsertUser(context.Background(), repository.UpsertUserParams{
		ID:    id,
		Email: id + "@example.com",
		Plan:  string(plan),
	})
	require.NoError(t, err)
}

func seedQuota(t *testing.T, store *mock.Store, userID string, period domain.Period, submissions, forms, campaigns int32) {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateQuota(ctx, repository.CreateQuotaParams{
		UserID: userID,
		Year:   int32(period.Year),
		Month:  int32(period.Month),
	})
	require.NoError(t, err)
	_, err = store.IncrementQuota(ctx, repository.IncrementQuotaParams{
		UserID:      userID,
		Year:        int32(period.Year),
		Month:       int32(period.Month),
		Submissions: submissions,
		Forms:       forms,
		Campaigns:   campaigns,
	})
	require.NoError(t, err)
}

func seedForm(t *testing.T, store *mock.Store, userID string) repository.Form {
	t.Helper()
	f, err := store.CreateForm(context.Background(), repository.CreateFormParams{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     "Waitlist",
		FormType: string(domain.FormTypeWaitlist),
	})
	require.NoError(t, err)
	return f
}

func seedSubmission(t *testing.T, store *mock.Store, formID uuid.UUID, addr string) repository.Submission {
	t.Helper()
	data := map[string]any{"name": "Jane"}
	if addr != "" {
		data["email"] = addr
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	sub, err := store.CreateSubmission(context.Background(), repository.CreateSubmissionParams{
		ID:     uuid.New(),
		FormID: formID,
		Data:   raw,
		Email:  domain.ToNullString(addr),
	})
	require.NoError(t, err)
	return sub
}

func TestRunItem_RecoversPanic(t *testing.T) {
	err := runItem(func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, runItem(func() error { return nil }))

	want := errors.New("plain failure")
	assert.ErrorIs(t, runItem(func() error { return want }), want)
}

func TestErrorString_Truncates(t *testing.T) {
	assert.Len(t, errorString(errors.New(strings.Repeat("x", 2000))), 500)
	assert.Equal(t, "short", errorString(errors.New("short")))
}
