package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/repository/mock"
	"github.com/mantlz/mantlz/internal/worker"
)

func newTestSubmissionService(store repository.Store) SubmissionService {
	return NewSubmissionService(store, domain.FixedClock(testNow), testLogger())
}

func TestSubmit_StoresEnrichedSubmission(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")

	sub, err := newTestSubmissionService(store).Submit(ctx, domain.SubmitParams{
		FormID: form.ID,
		UserID: "user_1",
		Data:   map[string]any{"email": " jane@example.com ", "message": "hi", "_meta": "spoofed"},
		Meta:   domain.SubmissionMeta{Browser: "Firefox", Country: "FR", IP: "203.0.113.9"},
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", sub.Email)
	meta, ok := domain.MetaOf(sub.Data)
	require.True(t, ok)
	assert.Equal(t, "Firefox", meta.Browser)
	assert.Equal(t, "FR", meta.Country)
	assert.True(t, testNow.Equal(meta.Timestamp))

	q := store.QuotasFor("user_1")
	require.Len(t, q, 1)
	assert.Equal(t, int32(1), q[0].SubmissionCount)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, worker.JobTypeSubmissionNotification, jobs[0].JobType)
	var payload worker.SubmissionNotificationPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, sub.ID, payload.SubmissionID)
}

func TestSubmit_DefaultsUnknownCountry(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")

	sub, err := newTestSubmissionService(store).Submit(context.Background(), domain.SubmitParams{
		FormID: form.ID,
		UserID: "user_1",
		Data:   map[string]any{"message": "no email"},
	})
	require.NoError(t, err)

	meta, ok := domain.MetaOf(sub.Data)
	require.True(t, ok)
	assert.Equal(t, domain.CountryUnknown, meta.Country)
	assert.Empty(t, sub.Email)
}

func TestSubmit_FormNotFound(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	seedUser(t, store, "user_2", domain.PlanFree)
	form := seedForm(t, store, "user_1")
	svc := newTestSubmissionService(store)

	_, err := svc.Submit(context.Background(), domain.SubmitParams{FormID: uuid.New(), UserID: "user_1", Data: map[string]any{}})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = svc.Submit(context.Background(), domain.SubmitParams{FormID: form.ID, UserID: "user_2", Data: map[string]any{}})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	assert.Empty(t, store.QuotasFor("user_1"))
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")
	seedQuota(t, store, "user_1", domain.PeriodOf(testNow), domain.QuotaDelta{Submissions: 50})

	_, err := newTestSubmissionService(store).Submit(context.Background(), domain.SubmitParams{
		FormID: form.ID,
		UserID: "user_1",
		Data:   map[string]any{"email": "x@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
	assert.Equal(t, "Monthly submission limit reached (50/50 submissions for your Free plan)", domain.ErrorMessage(err))

	assert.Zero(t, store.CountsFor("user_1").Submissions)
	assert.Empty(t, store.Jobs())
}

func TestSubmit_ConcurrentNeverOvershoots(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")
	seedQuota(t, store, "user_1", domain.PeriodOf(testNow), domain.QuotaDelta{Submissions: 45})
	svc := newTestSubmissionService(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Submit(context.Background(), domain.SubmitParams{
				FormID: form.ID,
				UserID: "user_1",
				Data:   map[string]any{"n": 1},
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), store.QuotasFor("user_1")[0].SubmissionCount)
	assert.Equal(t, 5, store.CountsFor("user_1").Submissions)
}

func TestSubmit_EnqueueFailureDoesNotFail(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")
	store.FailOn("EnqueueJob", func(any) error { return errors.New("queue down") })

	_, err := newTestSubmissionService(store).Submit(context.Background(), domain.SubmitParams{
		FormID: form.ID,
		UserID: "user_1",
		Data:   map[string]any{"email": "x@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.CountsFor("user_1").Submissions)
}

func TestSubmit_InsertFailureLeavesQuotaUntouched(t *testing.T) {
	store := newTestStore()
	seedUser(t, store, "user_1", domain.PlanFree)
	form := seedForm(t, store, "user_1")
	seedQuota(t, store, "user_1", domain.PeriodOf(testNow), domain.QuotaDelta{Submissions: 3})
	store.FailOn("IncrementQuota", func(any) error { return errors.New("connection reset") })

	_, err := newTestSubmissionService(store).Submit(context.Background(), domain.SubmitParams{
		FormID: form.ID,
		UserID: "user_1",
		Data:   map[string]any{},
	})
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.Zero(t, store.CountsFor("user_1").Submissions)
	assert.Equal(t, int32(3), store.QuotasFor("user_1")[0].SubmissionCount)
}

func seedSubmissions(t *testing.T, store *mock.Store, formID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.CreateSubmission(context.Background(), repository.CreateSubmissionParams{
			ID:        uuid.New(),
			FormID:    formID,
			Data:      json.RawMessage(`{"email":"a@example.com","_meta":{"browser":"Chrome","country":"US"}}`),
			Email:     toNullString("a@example.com"),
			CreatedAt: testNow.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
}

func TestListSubmissions(t *testing.T) {
	ctx := context.Background()

	t.Run("strips metadata without access", func(t *testing.T) {
		store := newTestStore()
		seedUser(t, store, "user_1", domain.PlanStandard)
		form := seedForm(t, store, "user_1")
		seedSubmissions(t, store, form.ID, 3)

		res, err := newTestSubmissionService(store).List(ctx, domain.ListSubmissionsParams{
			FormID: form.ID, UserID: "user_1", Limit: 2, IncludeMeta: true,
		})
		require.NoError(t, err)
		assert.Len(t, res.Submissions, 2)
		assert.Equal(t, int64(3), res.Total)
		assert.True(t, res.HasMore())
		_, ok := domain.MetaOf(res.Submissions[0].Data)
		assert.False(t, ok)
	})

	t.Run("pro keeps metadata", func(t *testing.T) {
		store := newTestStore()
		seedUser(t, store, "user_1", domain.PlanPro)
		form := seedForm(t, store, "user_1")
		seedSubmissions(t, store, form.ID, 1)

		res, err := newTestSubmissionService(store).List(ctx, domain.ListSubmissionsParams{
			FormID: form.ID, UserID: "user_1", IncludeMeta: true,
		})
		require.NoError(t, err)
		_, ok := domain.MetaOf(res.Submissions[0].Data)
		assert.True(t, ok)
		assert.Equal(t, int32(500), res.Limit)
	})

	t.Run("date filtering requires access", func(t *testing.T) {
		store := newTestStore()
		seedUser(t, store, "user_1", domain.PlanStandard)
		form := seedForm(t, store, "user_1")
		since := testNow.Add(-time.Hour)

		_, err := newTestSubmissionService(store).List(ctx, domain.ListSubmissionsParams{
			FormID: form.ID, UserID: "user_1", Since: &since,
		})
		assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
	})

	t.Run("page size is capped", func(t *testing.T) {
		store := newTestStore()
		seedUser(t, store, "user_1", domain.PlanFree)
		form := seedForm(t, store, "user_1")

		res, err := newTestSubmissionService(store).List(ctx, domain.ListSubmissionsParams{
			FormID: form.ID, UserID: "user_1", Limit: 10000,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(50), res.Limit)
	})
}
