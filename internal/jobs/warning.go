package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// WarningSummary reports the outcome of a quota-warning run.
type WarningSummary struct {
	Processed    int `json:"processed"` // Candidates examined
	EmailsSent   int `json:"emailsSent"`
	EmailsFailed int `json:"emailsFailed"`
	Skipped      int `json:"skipped"` // At or below the warning threshold
}

// WarningJob emails active users shortly before their data is reset.
//
// It acts only on domain.WarningDate of the current period, which tracks
// month length instead of a fixed day of the month.
type WarningJob struct {
	queries repository.Querier
	mailer  *email.Mailer
	limiter *rate.Limiter
	clock   domain.Clock
	logger  *slog.Logger
}

// NewWarningJob creates a new WarningJob. Sends are spaced at least
// sendInterval apart.
func NewWarningJob(queries repository.Querier, mailer *email.Mailer, sendInterval time.Duration, clock domain.Clock, logger *slog.Logger) *WarningJob {
	return &WarningJob{
		queries: queries,
		mailer:  mailer,
		limiter: newSendLimiter(sendInterval),
		clock:   clock,
		logger:  logger,
	}
}

// Run executes one warning sweep.
func (j *WarningJob) Run(ctx context.Context) (WarningSummary, error) {
	var summary WarningSummary
	start := time.Now()
	now := j.clock.Now().UTC()

	if !domain.IsWarningDay(now) {
		j.logger.Info("quota warning skipped, not the warning date",
			"date", now.Format(time.DateOnly),
			"warning_date", domain.WarningDate(now).Format(time.DateOnly),
		)
		metrics.CronSkipped(JobQuotaWarning)
		return summary, nil
	}

	period := domain.PeriodOf(now)
	candidates, err := j.queries.ListWarningCandidates(ctx, repository.PeriodParams{
		Year:  int32(period.Year),
		Month: int32(period.Month),
	})
	if err != nil {
		metrics.CronFailed(JobQuotaWarning)
		return summary, fmt.Errorf("list warning candidates: %w", err)
	}

	resetsOn := domain.NextResetAt(now)
	daysLeft := domain.DaysUntilReset(now)

	for _, c := range candidates {
		summary.Processed++

		plan, err := domain.ParsePlan(c.Plan)
		if err != nil {
			summary.EmailsFailed++
			j.logger.Error("user has an unknown plan", "error", err, "user_id", c.UserID)
			continue
		}
		limits, err := domain.GetQuotaByPlan(plan)
		if err != nil {
			summary.EmailsFailed++
			j.logger.Error("no limits for plan", "error", err, "user_id", c.UserID)
			continue
		}

		used := int64(c.SubmissionCount)
		limit := int64(limits.MaxSubmissionsPerMonth)
		if !domain.AboveWarningThreshold(used, limit) {
			summary.Skipped++
			continue
		}

		if err := j.limiter.Wait(ctx); err != nil {
			metrics.CronFailed(JobQuotaWarning)
			return summary, fmt.Errorf("throttle warning emails: %w", err)
		}

		name := domain.NullStringValue(c.FirstName)
		if name == "" {
			name = c.Email
		}
		err = runItem(func() error {
			return j.mailer.SendQuotaWarning(ctx, email.QuotaWarning{
				To:       c.Email,
				Name:     name,
				Plan:     plan,
				Used:     used,
				Limit:    limit,
				ResetsOn: resetsOn,
				DaysLeft: daysLeft,
			})
		})
		if err != nil {
			summary.EmailsFailed++
			j.logger.Warn("failed to send quota warning",
				"error", err,
				"user_id", c.UserID,
			)
			continue
		}
		summary.EmailsSent++
	}

	metrics.CronItems(JobQuotaWarning, "email_sent", summary.EmailsSent)
	metrics.CronItems(JobQuotaWarning, "email_failed", summary.EmailsFailed)
	metrics.CronItems(JobQuotaWarning, "skipped", summary.Skipped)
	metrics.CronCompleted(JobQuotaWarning, time.Since(start))

	j.logger.Info("quota warning completed",
		"processed", summary.Processed,
		"emails_sent", summary.EmailsSent,
		"emails_failed", summary.EmailsFailed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}
