package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// TrackingService records campaign email engagement.
type TrackingService interface {
	// RecordOpen marks a sent email opened. Only the first open counts
	// against the owner's quota.
	RecordOpen(ctx context.Context, sentEmailID uuid.UUID) error

	// RecordClick marks a sent email clicked. Only the first click counts.
	RecordClick(ctx context.Context, sentEmailID uuid.UUID) error

	// Unsubscribe excludes the recipient's submission from future campaigns.
	Unsubscribe(ctx context.Context, sentEmailID uuid.UUID) error
}

type trackingService struct {
	store  repository.Store
	quota  QuotaService
	clock  domain.Clock
	logger *slog.Logger
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(store repository.Store, quota QuotaService, clock domain.Clock, logger *slog.Logger) TrackingService {
	return &trackingService{
		store:  store,
		quota:  quota,
		clock:  clock,
		logger: logger,
	}
}

func (s *trackingService) RecordOpen(ctx context.Context, sentEmailID uuid.UUID) error {
	return s.record(ctx, "TrackingService.RecordOpen", "open", sentEmailID, s.store.MarkSentEmailOpened, domain.QuotaDelta{Opens: 1})
}

func (s *trackingService) RecordClick(ctx context.Context, sentEmailID uuid.UUID) error {
	return s.record(ctx, "TrackingService.RecordClick", "click", sentEmailID, s.store.MarkSentEmailClicked, domain.QuotaDelta{Clicks: 1})
}

func (s *trackingService) record(
	ctx context.Context,
	op, event string,
	id uuid.UUID,
	mark func(context.Context, repository.MarkSentEmailEventParams) (int64, error),
	delta domain.QuotaDelta,
) error {
	sent, err := s.getSentEmail(ctx, op, id)
	if err != nil {
		return err
	}

	n, err := mark(ctx, repository.MarkSentEmailEventParams{ID: id, At: s.clock.Now()})
	if err != nil {
		return domain.Internal(err, op, "Failed to record event")
	}
	if n == 0 {
		return nil
	}

	metrics.EmailTrackingEventsTotal.WithLabelValues(event).Inc()
	if err := s.quota.UpdateQuota(ctx, sent.UserID, delta); err != nil {
		s.logger.Warn("failed to count tracking event", "error", err, "event", event, "sent_email_id", id)
	}
	return nil
}

func (s *trackingService) Unsubscribe(ctx context.Context, sentEmailID uuid.UUID) error {
	const op = "TrackingService.Unsubscribe"

	sent, err := s.getSentEmail(ctx, op, sentEmailID)
	if err != nil {
		return err
	}
	if err := s.store.MarkSubmissionUnsubscribed(ctx, sent.SubmissionID); err != nil {
		return domain.Internal(err, op, "Failed to unsubscribe")
	}

	metrics.EmailTrackingEventsTotal.WithLabelValues("unsubscribe").Inc()
	s.logger.Info("recipient unsubscribed", "submission_id", sent.SubmissionID, "campaign_id", sent.CampaignID)
	return nil
}

func (s *trackingService) getSentEmail(ctx context.Context, op string, id uuid.UUID) (repository.SentEmail, error) {
	sent, err := s.store.GetSentEmail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.SentEmail{}, domain.NotFound(op, "email", id.String())
		}
		return repository.SentEmail{}, domain.Internal(err, op, "Failed to look up email")
	}
	return sent, nil
}
