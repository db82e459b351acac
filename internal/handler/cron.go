package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/jobs"
)

// =============================================================================
// Job interfaces
// =============================================================================

// ResetRunner runs the billing-cycle reset.
type ResetRunner interface {
	Run(ctx context.Context) (jobs.ResetSummary, error)
}

// WarningRunner runs the quota-warning sweep.
type WarningRunner interface {
	Run(ctx context.Context) (jobs.WarningSummary, error)
}

// DispatchRunner runs the campaign dispatcher.
type DispatchRunner interface {
	Run(ctx context.Context) (jobs.DispatchSummary, error)
}

// =============================================================================
// CronHandler
// =============================================================================

// CronHandler exposes the scheduled jobs to the external scheduler. Each
// endpoint runs its job synchronously and returns the job's summary.
type CronHandler struct {
	reset    ResetRunner
	warning  WarningRunner
	dispatch DispatchRunner
	logger   *slog.Logger
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(reset ResetRunner, warning WarningRunner, dispatch DispatchRunner, logger *slog.Logger) *CronHandler {
	return &CronHandler{
		reset:    reset,
		warning:  warning,
		dispatch: dispatch,
		logger:   logger,
	}
}

// RegisterRoutes registers the cron endpoints behind auth.
func (h *CronHandler) RegisterRoutes(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.Handle(method+" /api/cron/reset-quotas", auth(http.HandlerFunc(h.ResetQuotas)))
		mux.Handle(method+" /api/cron/quota-warning", auth(http.HandlerFunc(h.QuotaWarning)))
		mux.Handle(method+" /api/cron/process-campaigns", auth(http.HandlerFunc(h.ProcessCampaigns)))
	}
}

// ResetQuotas handles /api/cron/reset-quotas.
func (h *CronHandler) ResetQuotas(w http.ResponseWriter, r *http.Request) {
	runJob(h.logger, w, r, jobs.JobResetQuotas, h.reset.Run)
}

// QuotaWarning handles /api/cron/quota-warning.
func (h *CronHandler) QuotaWarning(w http.ResponseWriter, r *http.Request) {
	runJob(h.logger, w, r, jobs.JobQuotaWarning, h.warning.Run)
}

// ProcessCampaigns handles /api/cron/process-campaigns.
func (h *CronHandler) ProcessCampaigns(w http.ResponseWriter, r *http.Request) {
	runJob(h.logger, w, r, jobs.JobProcessCampaigns, h.dispatch.Run)
}

// runJob writes the summary with 200, even when items failed. Only an error
// at the job boundary is a 500, and its message is returned to the caller.
func runJob[T any](logger *slog.Logger, w http.ResponseWriter, r *http.Request, name string, run func(context.Context) (T, error)) {
	summary, err := run(r.Context())
	if err != nil {
		logger.Error("cron job failed", "job", name, "error", err)
		writeJSONError(w, http.StatusInternalServerError, domain.EINTERNAL, err.Error())
		return
	}
	logger.Info("cron job finished", "job", name, "summary", summary)
	writeJSON(w, http.StatusOK, summary)
}
