package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
)

// CampaignService defines the interface for campaign authoring.
// Sending is done by the dispatch job, not by this service.
type CampaignService interface {
	// Create creates a DRAFT campaign if the plan allows another one with
	// the requested number of recipients.
	Create(ctx context.Context, params domain.CreateCampaignParams) (*domain.Campaign, error)

	// GetByID retrieves a campaign by ID, verifying user ownership.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Campaign, error)

	// Schedule moves a DRAFT campaign to SCHEDULED. Requires the
	// scheduling feature.
	Schedule(ctx context.Context, params domain.ScheduleCampaignParams) (*domain.Campaign, error)
}

type campaignService struct {
	store  repository.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewCampaignService creates a new CampaignService.
func NewCampaignService(store repository.Store, clock domain.Clock, logger *slog.Logger) CampaignService {
	return &campaignService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Create checks the campaign gate, inserts the draft and counts it against
// the current period in one transaction.
func (s *campaignService) Create(ctx context.Context, params domain.CreateCampaignParams) (*domain.Campaign, error) {
	const op = "CampaignService.Create"

	params.Name = strings.TrimSpace(params.Name)
	params.Subject = strings.TrimSpace(params.Subject)
	fields := make(map[string]string)
	if params.Name == "" {
		fields["name"] = "Name is required"
	}
	if params.Subject == "" {
		fields["subject"] = "Subject is required"
	}
	if strings.TrimSpace(params.Content) == "" {
		fields["content"] = "Content is required"
	}
	if params.RecipientCount < 0 {
		fields["recipientCount"] = "Recipient count cannot be negative"
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Op: op, Fields: fields}
	}

	period := domain.PeriodOf(s.clock.Now())
	var created repository.Campaign
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		plan, limits, err := loadPlan(ctx, q, op, params.UserID)
		if err != nil {
			return err
		}
		if _, err := getOwnedForm(ctx, q, op, params.FormID, params.UserID); err != nil {
			return err
		}
		row, err := lockQuota(ctx, q, params.UserID, period)
		if err != nil {
			return err
		}
		if err := checkCampaignLimit(op, plan, limits, row, params.RecipientCount); err != nil {
			return err
		}

		var recipientLimit sql.NullInt32
		if params.RecipientCount > 0 {
			recipientLimit = sql.NullInt32{Int32: int32(params.RecipientCount), Valid: true}
		}
		created, err = q.CreateCampaign(ctx, repository.CreateCampaignParams{
			ID:             uuid.New(),
			FormID:         params.FormID,
			UserID:         params.UserID,
			Name:           params.Name,
			Subject:        params.Subject,
			Content:        params.Content,
			Status:         string(domain.CampaignStatusDraft),
			RecipientLimit: recipientLimit,
		})
		if err != nil {
			return err
		}
		return incrementQuota(ctx, q, params.UserID, period, domain.QuotaDelta{Campaigns: 1})
	})
	if err != nil {
		if domain.ErrorCode(err) != domain.EINTERNAL {
			return nil, quotaRejected(s.logger, params.UserID, err)
		}
		s.logger.Error("failed to create campaign", "error", err, "op", op, "user_id", params.UserID)
		return nil, domain.Internal(err, op, "Failed to create campaign")
	}

	c := repoCampaignToDomain(created)
	s.logger.Info("campaign created", "campaign_id", c.ID, "form_id", c.FormID, "user_id", c.UserID)
	return &c, nil
}

// GetByID retrieves a campaign by ID, verifying user ownership.
func (s *campaignService) GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Campaign, error) {
	const op = "CampaignService.GetByID"

	row, err := s.store.GetCampaignByIDAndUser(ctx, repository.GetCampaignByIDAndUserParams{ID: id, UserID: userID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "campaign", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve campaign")
	}
	c := repoCampaignToDomain(row)
	return &c, nil
}

// Schedule moves a DRAFT campaign to SCHEDULED.
func (s *campaignService) Schedule(ctx context.Context, params domain.ScheduleCampaignParams) (*domain.Campaign, error) {
	const op = "CampaignService.Schedule"

	plan, limits, err := loadPlan(ctx, s.store, op, params.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkFeature(op, plan, limits, domain.FeatureScheduling); err != nil {
		return nil, quotaRejected(s.logger, params.UserID, err)
	}
	if params.ScheduledAt.IsZero() {
		return nil, domain.Invalid(op, "Scheduled time is required")
	}
	if params.ScheduledAt.Before(s.clock.Now()) {
		return nil, domain.Invalid(op, "Scheduled time must be in the future")
	}

	current, err := s.GetByID(ctx, params.ID, params.UserID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(domain.CampaignStatusScheduled) {
		return nil, domain.Conflict(op, fmt.Sprintf("Campaign is %s and cannot be scheduled", current.Status))
	}

	n, err := s.store.ScheduleCampaign(ctx, repository.ScheduleCampaignParams{
		ID:          params.ID,
		UserID:      params.UserID,
		ScheduledAt: params.ScheduledAt.UTC(),
	})
	if err != nil {
		s.logger.Error("failed to schedule campaign", "error", err, "op", op, "campaign_id", params.ID)
		return nil, domain.Internal(err, op, "Failed to schedule campaign")
	}
	if n == 0 {
		// Lost a race with another schedule request.
		return nil, domain.Conflict(op, "Campaign is no longer a draft")
	}

	s.logger.Info("campaign scheduled", "campaign_id", params.ID, "scheduled_at", params.ScheduledAt)
	return s.GetByID(ctx, params.ID, params.UserID)
}

func repoCampaignToDomain(c repository.Campaign) domain.Campaign {
	return domain.Campaign{
		ID:             c.ID,
		FormID:         c.FormID,
		UserID:         c.UserID,
		Name:           c.Name,
		Subject:        c.Subject,
		Content:        c.Content,
		Status:         domain.CampaignStatus(c.Status),
		RecipientLimit: int(c.RecipientLimit.Int32),
		ScheduledAt:    domain.NullTimeValue(c.ScheduledAt),
		SentAt:         domain.NullTimeValue(c.SentAt),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
