package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/jobs"
)

type runnerFunc[T any] func(ctx context.Context) (T, error)

func (f runnerFunc[T]) Run(ctx context.Context) (T, error) { return f(ctx) }

func newCronMux(reset ResetRunner, warning WarningRunner, dispatch DispatchRunner) *http.ServeMux {
	mux := http.NewServeMux()
	NewCronHandler(reset, warning, dispatch, discardLogger()).RegisterRoutes(mux, passthrough)
	return mux
}

func TestCron_ReturnsSummary(t *testing.T) {
	mux := newCronMux(
		runnerFunc[jobs.ResetSummary](func(context.Context) (jobs.ResetSummary, error) {
			return jobs.ResetSummary{Processed: 3, EmailsSent: 2, EmailsFailed: 1}, nil
		}),
		runnerFunc[jobs.WarningSummary](func(context.Context) (jobs.WarningSummary, error) {
			return jobs.WarningSummary{Processed: 2, Skipped: 2}, nil
		}),
		runnerFunc[jobs.DispatchSummary](func(context.Context) (jobs.DispatchSummary, error) {
			return jobs.DispatchSummary{Processed: 1, Sent: 4, Failed: 1}, nil
		}),
	)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/cron/reset-quotas", `{"processed":3,"emailsSent":2,"emailsFailed":1,"resetsFailed":0,"exportsFailed":0}`},
		{http.MethodPost, "/api/cron/reset-quotas", `{"processed":3,"emailsSent":2,"emailsFailed":1,"resetsFailed":0,"exportsFailed":0}`},
		{http.MethodGet, "/api/cron/quota-warning", `{"processed":2,"emailsSent":0,"emailsFailed":0,"skipped":2}`},
		{http.MethodPost, "/api/cron/process-campaigns", `{"processed":1,"sent":4,"failed":1,"campaignsFailed":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestCron_JobErrorIs500WithMessage(t *testing.T) {
	failing := runnerFunc[jobs.ResetSummary](func(context.Context) (jobs.ResetSummary, error) {
		return jobs.ResetSummary{}, errors.New("list reset candidates: connection refused")
	})
	mux := newCronMux(failing, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cron/reset-quotas", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[JSONError](t, rec)
	assert.Equal(t, domain.EINTERNAL, resp.Error.Code)
	assert.Equal(t, "list reset candidates: connection refused", resp.Error.Message)
}

func TestCron_MethodNotAllowed(t *testing.T) {
	mux := newCronMux(nil, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cron/reset-quotas", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
