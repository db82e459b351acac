package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// DispatchSummary reports the outcome of a campaign dispatch run.
type DispatchSummary struct {
	Processed       int `json:"processed"` // Campaigns claimed by this run
	Sent            int `json:"sent"`
	Failed          int `json:"failed"`
	CampaignsFailed int `json:"campaignsFailed"`
}

// staleCampaignAfter is how long a SENDING campaign may go without a
// heartbeat before a later run requeues it.
const staleCampaignAfter = 15 * time.Minute

// errAlreadyClaimed marks a campaign taken by an overlapping run.
var errAlreadyClaimed = errors.New("campaign already claimed")

// DispatchJob sends scheduled campaigns that are due.
//
// Each due campaign is claimed with a conditional SCHEDULED -> SENDING
// update, so overlapping runs never send the same campaign twice. Recipients
// are materialized on first dispatch and delivered one by one; a failing
// recipient is marked FAILED and the loop continues. A campaign left in
// SENDING by a crashed run is requeued once its heartbeat goes stale and
// resumes with its remaining PENDING recipients.
type DispatchJob struct {
	store   repository.Store
	mailer  *email.Mailer
	quota   QuotaUpdater
	limiter *rate.Limiter
	clock   domain.Clock
	logger  *slog.Logger
}

// NewDispatchJob creates a new DispatchJob. Sends are spaced at least
// sendInterval apart.
func NewDispatchJob(store repository.Store, mailer *email.Mailer, quota QuotaUpdater, sendInterval time.Duration, clock domain.Clock, logger *slog.Logger) *DispatchJob {
	return &DispatchJob{
		store:   store,
		mailer:  mailer,
		quota:   quota,
		limiter: newSendLimiter(sendInterval),
		clock:   clock,
		logger:  logger,
	}
}

// Run dispatches every due campaign.
func (j *DispatchJob) Run(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary
	start := time.Now()

	requeued, err := j.store.RequeueStaleCampaigns(ctx, j.clock.Now().UTC().Add(-staleCampaignAfter))
	if err != nil {
		j.logger.Warn("failed to requeue stale campaigns", "error", err)
	} else if requeued > 0 {
		metrics.CronItems(JobProcessCampaigns, "campaign_requeued", int(requeued))
		j.logger.Warn("requeued stale campaigns", "count", requeued)
	}

	due, err := j.store.ListDueCampaigns(ctx, j.clock.Now().UTC())
	if err != nil {
		metrics.CronFailed(JobProcessCampaigns)
		return summary, fmt.Errorf("list due campaigns: %w", err)
	}

	for _, c := range due {
		var sent, failed int
		err := runItem(func() error {
			var err error
			sent, failed, err = j.dispatch(ctx, c)
			return err
		})
		if errors.Is(err, errAlreadyClaimed) {
			j.logger.Info("campaign claimed by another run", "campaign_id", c.ID)
			continue
		}

		summary.Processed++
		summary.Sent += sent
		summary.Failed += failed

		if err != nil {
			summary.CampaignsFailed++
			j.logger.Error("campaign dispatch failed",
				"error", err,
				"campaign_id", c.ID,
				"user_id", c.UserID,
			)
			j.forceFailed(ctx, c.ID)
		}
	}

	metrics.CronItems(JobProcessCampaigns, "campaign", summary.Processed)
	metrics.CronItems(JobProcessCampaigns, "campaign_failed", summary.CampaignsFailed)
	metrics.CronCompleted(JobProcessCampaigns, time.Since(start))

	if summary.Processed > 0 {
		j.logger.Info("campaign dispatch completed",
			"processed", summary.Processed,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"campaigns_failed", summary.CampaignsFailed,
		)
	}
	return summary, nil
}

// dispatch claims one campaign, delivers it to every pending recipient and
// records the terminal status.
func (j *DispatchJob) dispatch(ctx context.Context, c repository.Campaign) (sent, failed int, err error) {
	claimed, err := j.store.ClaimCampaign(ctx, c.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("claim campaign: %w", err)
	}
	if claimed == 0 {
		return 0, 0, errAlreadyClaimed
	}

	total, err := j.store.CountCampaignRecipients(ctx, c.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("count recipients: %w", err)
	}
	if total == 0 {
		if err := j.materializeRecipients(ctx, c); err != nil {
			return 0, 0, err
		}
	}

	recipients, err := j.store.ListPendingRecipients(ctx, c.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending recipients: %w", err)
	}

	lastBeat := time.Now()
	for _, r := range recipients {
		if time.Since(lastBeat) >= staleCampaignAfter/3 {
			if err := j.store.TouchCampaign(ctx, c.ID); err != nil {
				j.logger.Warn("failed to touch campaign", "error", err, "campaign_id", c.ID)
			}
			lastBeat = time.Now()
		}
		if err := runItem(func() error { return j.deliver(ctx, c, r) }); err != nil {
			failed++
			metrics.CampaignEmailsTotal.WithLabelValues("failed").Inc()
			j.logger.Warn("campaign email failed",
				"error", err,
				"campaign_id", c.ID,
				"recipient_id", r.ID,
			)
			if merr := j.store.MarkRecipientFailed(ctx, repository.MarkRecipientFailedParams{
				ID:    r.ID,
				Error: sql.NullString{String: errorString(err), Valid: true},
			}); merr != nil {
				j.logger.Error("failed to mark recipient failed", "error", merr, "recipient_id", r.ID)
			}
			continue
		}

		sent++
		metrics.CampaignEmailsTotal.WithLabelValues("sent").Inc()
		if merr := j.store.MarkRecipientSent(ctx, repository.MarkRecipientSentParams{
			ID:     r.ID,
			SentAt: j.clock.Now().UTC(),
		}); merr != nil {
			j.logger.Error("failed to mark recipient sent", "error", merr, "recipient_id", r.ID)
		}
	}

	status := domain.CampaignOutcome(len(recipients), failed)
	if err := j.store.FinishCampaign(ctx, repository.FinishCampaignParams{
		ID:     c.ID,
		Status: string(status),
		SentAt: sql.NullTime{Time: j.clock.Now().UTC(), Valid: true},
	}); err != nil {
		return sent, failed, fmt.Errorf("finish campaign: %w", err)
	}

	if sent > 0 {
		if err := j.quota.UpdateQuota(ctx, c.UserID, domain.QuotaDelta{Emails: int64(sent)}); err != nil {
			j.logger.Warn("failed to count campaign emails", "error", err, "user_id", c.UserID)
		}
	}

	j.logger.Info("campaign dispatched",
		"campaign_id", c.ID,
		"status", status,
		"recipients", len(recipients),
		"sent", sent,
		"failed", failed,
	)
	return sent, failed, nil
}

// materializeRecipients creates PENDING recipients from the form's most
// recent subscribed submissions, up to the campaign's recipient cap.
func (j *DispatchJob) materializeRecipients(ctx context.Context, c repository.Campaign) error {
	campaign := domain.Campaign{}
	if c.RecipientLimit.Valid {
		campaign.RecipientLimit = int(c.RecipientLimit.Int32)
	}

	subs, err := j.store.ListRecipientCandidates(ctx, repository.ListRecipientCandidatesParams{
		FormID: c.FormID,
		Limit:  int32(campaign.RecipientCap()),
	})
	if err != nil {
		return fmt.Errorf("list recipient candidates: %w", err)
	}

	for _, s := range subs {
		if _, err := j.store.CreateCampaignRecipient(ctx, repository.CreateCampaignRecipientParams{
			ID:           uuid.New(),
			CampaignID:   c.ID,
			SubmissionID: s.ID,
			Email:        s.Email.String,
		}); err != nil {
			return fmt.Errorf("create campaign recipient: %w", err)
		}
	}
	return nil
}

// deliver records a tracking row and sends the campaign to one recipient.
func (j *DispatchJob) deliver(ctx context.Context, c repository.Campaign, r repository.CampaignRecipient) error {
	tracking, err := j.store.CreateSentEmail(ctx, repository.CreateSentEmailParams{
		ID:           uuid.New(),
		CampaignID:   c.ID,
		RecipientID:  r.ID,
		SubmissionID: r.SubmissionID,
		UserID:       c.UserID,
	})
	if err != nil {
		return fmt.Errorf("create tracking row: %w", err)
	}

	if err := j.limiter.Wait(ctx); err != nil {
		return err
	}

	return j.mailer.SendCampaign(ctx, email.CampaignEmail{
		To:      r.Email,
		Subject: c.Subject,
		Content: c.Content,
		Links:   j.mailer.TrackingLinks(tracking.ID),
	})
}

// forceFailed moves a campaign that could not finish to FAILED.
func (j *DispatchJob) forceFailed(ctx context.Context, id uuid.UUID) {
	if err := j.store.FinishCampaign(ctx, repository.FinishCampaignParams{
		ID:     id,
		Status: string(domain.CampaignStatusFailed),
	}); err != nil {
		j.logger.Error("failed to mark campaign failed", "error", err, "campaign_id", id)
	}
}
