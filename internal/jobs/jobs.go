// Package jobs contains Mantlz's background work: the scheduled billing-cycle
// jobs invoked by the cron endpoints and the worker handler that sends
// submission notifications.
//
// Scheduled jobs process their items sequentially. A failing item is logged,
// counted in the returned summary and never stops the loop; only an error
// before the loop starts (such as the candidate query) fails the run.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/mantlz/mantlz/internal/domain"
)

// Job names used in logs and metrics.
const (
	JobResetQuotas      = "reset_quotas"
	JobQuotaWarning     = "quota_warning"
	JobProcessCampaigns = "process_campaigns"
)

// runItem calls fn, converting a panic into an error so one broken item
// cannot take down the rest of a batch.
func runItem(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// errorString truncates err for storage in an error column.
func errorString(err error) string {
	const max = 500
	s := err.Error()
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// QuotaUpdater applies relative changes to a user's current quota row.
type QuotaUpdater interface {
	UpdateQuota(ctx context.Context, userID string, delta domain.QuotaDelta) error
}

// newSendLimiter returns a limiter allowing one send per interval.
// A non-positive interval disables throttling.
func newSendLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
