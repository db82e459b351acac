package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// ResetSummary reports the outcome of a billing-cycle reset run.
type ResetSummary struct {
	Processed     int `json:"processed"` // Users whose data was reset
	EmailsSent    int `json:"emailsSent"`
	EmailsFailed  int `json:"emailsFailed"`
	ResetsFailed  int `json:"resetsFailed"`
	ExportsFailed int `json:"exportsFailed"`
}

// ResetJob clears every active user's data at the start of a billing period.
//
// It acts only on the first day of a month. Candidates are users with a quota
// row for the previous period; each is reset in its own transaction, so a
// failure leaves that user's data untouched and the loop moves on. A user
// who was reset has no previous-period row left, which makes a second run on
// the same day a no-op for them.
type ResetJob struct {
	store    repository.Store
	exporter *Exporter // Optional
	mailer   *email.Mailer
	clock    domain.Clock
	logger   *slog.Logger
}

// NewResetJob creates a new ResetJob. exporter may be nil to skip archives.
func NewResetJob(store repository.Store, exporter *Exporter, mailer *email.Mailer, clock domain.Clock, logger *slog.Logger) *ResetJob {
	return &ResetJob{
		store:    store,
		exporter: exporter,
		mailer:   mailer,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes one reset sweep.
func (j *ResetJob) Run(ctx context.Context) (ResetSummary, error) {
	var summary ResetSummary
	start := time.Now()
	now := j.clock.Now().UTC()

	if !domain.IsResetDay(now) {
		j.logger.Info("quota reset skipped, not the first of the month", "date", now.Format(time.DateOnly))
		metrics.CronSkipped(JobResetQuotas)
		return summary, nil
	}

	current := domain.PeriodOf(now)
	previous := current.Previous()

	candidates, err := j.store.ListResetCandidates(ctx, repository.PeriodParams{
		Year:  int32(previous.Year),
		Month: int32(previous.Month),
	})
	if err != nil {
		metrics.CronFailed(JobResetQuotas)
		return summary, fmt.Errorf("list reset candidates: %w", err)
	}

	j.logger.Info("starting quota reset",
		"period", current.String(),
		"candidates", len(candidates),
	)

	for _, c := range candidates {
		archiveURL := ""
		if j.exporter != nil {
			url, err := j.exporter.Export(ctx, c.UserID, previous)
			if err != nil {
				summary.ExportsFailed++
				j.logger.Warn("failed to export user data before reset",
					"error", err,
					"user_id", c.UserID,
				)
			}
			archiveURL = url
		}

		if err := runItem(func() error { return j.resetUser(ctx, c.UserID, current) }); err != nil {
			summary.ResetsFailed++
			j.logger.Error("failed to reset user",
				"error", err,
				"user_id", c.UserID,
			)
			continue
		}
		summary.Processed++

		if err := j.sendResetEmail(ctx, c, previous, archiveURL); err != nil {
			summary.EmailsFailed++
			j.logger.Warn("failed to send reset email",
				"error", err,
				"user_id", c.UserID,
			)
			continue
		}
		summary.EmailsSent++
	}

	metrics.CronItems(JobResetQuotas, "reset", summary.Processed)
	metrics.CronItems(JobResetQuotas, "reset_failed", summary.ResetsFailed)
	metrics.CronItems(JobResetQuotas, "email_sent", summary.EmailsSent)
	metrics.CronItems(JobResetQuotas, "email_failed", summary.EmailsFailed)
	metrics.CronItems(JobResetQuotas, "export_failed", summary.ExportsFailed)
	metrics.CronCompleted(JobResetQuotas, time.Since(start))

	j.logger.Info("quota reset completed",
		"processed", summary.Processed,
		"resets_failed", summary.ResetsFailed,
		"emails_sent", summary.EmailsSent,
		"emails_failed", summary.EmailsFailed,
		"exports_failed", summary.ExportsFailed,
	)
	return summary, nil
}

// resetUser deletes everything the user owns, children before parents, and
// leaves exactly one zeroed quota row for the current period.
func (j *ResetJob) resetUser(ctx context.Context, userID string, current domain.Period) error {
	return j.store.ExecTx(ctx, func(q repository.Querier) error {
		formIDs, err := q.ListFormIDsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list forms: %w", err)
		}

		if err := q.DeleteSentEmailsByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete sent emails: %w", err)
		}
		if err := q.DeleteCampaignRecipientsByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete campaign recipients: %w", err)
		}
		if err := q.DeleteCampaignsByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete campaigns: %w", err)
		}
		if len(formIDs) > 0 {
			if err := q.DeleteNotificationLogsByFormIDs(ctx, formIDs); err != nil {
				return fmt.Errorf("delete notification logs: %w", err)
			}
			if err := q.DeleteEmailSettingsByFormIDs(ctx, formIDs); err != nil {
				return fmt.Errorf("delete email settings: %w", err)
			}
			if err := q.DeleteSubmissionsByFormIDs(ctx, formIDs); err != nil {
				return fmt.Errorf("delete submissions: %w", err)
			}
		}
		if err := q.DeleteFormsByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete forms: %w", err)
		}
		if err := q.DeleteAPIKeysByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete api keys: %w", err)
		}
		if err := q.DeleteQuotasByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete quotas: %w", err)
		}

		if _, err := q.CreateQuota(ctx, repository.CreateQuotaParams{
			UserID: userID,
			Year:   int32(current.Year),
			Month:  int32(current.Month),
		}); err != nil {
			return fmt.Errorf("create quota: %w", err)
		}
		return nil
	})
}

func (j *ResetJob) sendResetEmail(ctx context.Context, c repository.QuotaCandidateRow, previous domain.Period, archiveURL string) error {
	plan, err := domain.ParsePlan(c.Plan)
	if err != nil {
		return err
	}
	limits, err := domain.GetQuotaByPlan(plan)
	if err != nil {
		return err
	}

	name := domain.NullStringValue(c.FirstName)
	if name == "" {
		name = c.Email
	}

	return j.mailer.SendQuotaReset(ctx, email.QuotaReset{
		To:          c.Email,
		Name:        name,
		Plan:        plan,
		Period:      previous,
		Submissions: int64(c.SubmissionCount),
		Limit:       int64(limits.MaxSubmissionsPerMonth),
		Forms:       int64(c.FormCount),
		Campaigns:   int64(c.CampaignCount),
		ArchiveURL:  archiveURL,
	})
}
