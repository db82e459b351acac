// Package service contains the business logic layer.
//
// This file implements the quota ledger and the enforcement gate. The gate
// never increments; callers increment after the guarded action succeeds,
// or use the transactional helpers below to check, act and increment in
// one transaction.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService reads, checks and mutates a user's period usage.
type QuotaService interface {
	// GetCurrentQuota returns the current period row, creating it if absent.
	GetCurrentQuota(ctx context.Context, userID string) (*domain.Quota, error)

	// UpdateQuota applies relative increments to the current period row.
	UpdateQuota(ctx context.Context, userID string, delta domain.QuotaDelta) error

	// GetUsage returns current usage alongside the plan's limits.
	GetUsage(ctx context.Context, userID string) (*domain.QuotaUsage, error)

	// CanCreateForm returns nil if formCount < maxForms.
	CanCreateForm(ctx context.Context, userID string) error

	// CanSubmitForm returns nil if submissionCount < maxSubmissionsPerMonth.
	CanSubmitForm(ctx context.Context, userID string) error

	// CanCreateCampaign returns nil if campaigns are enabled, the monthly
	// campaign count is below the limit and recipientCount fits the plan.
	CanCreateCampaign(ctx context.Context, userID string, recipientCount int) error

	// CheckFeatureAccess returns nil if the plan unlocks feature.
	CheckFeatureAccess(ctx context.Context, userID string, feature domain.Feature) error
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  repository.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store repository.Store, clock domain.Clock, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// GetCurrentQuota returns the current period row, creating it if absent.
func (s *quotaService) GetCurrentQuota(ctx context.Context, userID string) (*domain.Quota, error) {
	const op = "QuotaService.GetCurrentQuota"

	row, err := ensureQuota(ctx, s.store, userID, domain.PeriodOf(s.clock.Now()))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota")
	}
	return quotaToDomain(row), nil
}

// UpdateQuota applies relative increments to the current period row.
func (s *quotaService) UpdateQuota(ctx context.Context, userID string, delta domain.QuotaDelta) error {
	const op = "QuotaService.UpdateQuota"

	if err := incrementQuota(ctx, s.store, userID, domain.PeriodOf(s.clock.Now()), delta); err != nil {
		return domain.Internal(err, op, "failed to update quota")
	}
	return nil
}

// GetUsage returns current usage alongside the plan's limits.
func (s *quotaService) GetUsage(ctx context.Context, userID string) (*domain.QuotaUsage, error) {
	const op = "QuotaService.GetUsage"

	now := s.clock.Now()
	plan, limits, err := loadPlan(ctx, s.store, op, userID)
	if err != nil {
		return nil, err
	}
	row, err := ensureQuota(ctx, s.store, userID, domain.PeriodOf(now))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota")
	}

	return &domain.QuotaUsage{
		Plan:        plan,
		Period:      domain.PeriodOf(now).String(),
		Forms:       domain.UsageCounter{Used: int64(row.FormCount), Limit: int64(limits.MaxForms)},
		Submissions: domain.UsageCounter{Used: int64(row.SubmissionCount), Limit: int64(limits.MaxSubmissionsPerMonth)},
		Campaigns:   domain.UsageCounter{Used: int64(row.CampaignCount), Limit: int64(limits.Campaigns.MaxCampaignsPerMonth)},
		EmailsSent:  int64(row.EmailsSent),
		ResetsOn:    domain.NextResetAt(now),
		Limits:      limits,
	}, nil
}

// CanCreateForm returns nil if formCount < maxForms.
func (s *quotaService) CanCreateForm(ctx context.Context, userID string) error {
	const op = "QuotaService.CanCreateForm"

	plan, limits, row, err := s.load(ctx, op, userID)
	if err != nil {
		return err
	}
	return s.rejected(userID, checkFormLimit(op, plan, limits, row))
}

// CanSubmitForm returns nil if submissionCount < maxSubmissionsPerMonth.
func (s *quotaService) CanSubmitForm(ctx context.Context, userID string) error {
	const op = "QuotaService.CanSubmitForm"

	plan, limits, row, err := s.load(ctx, op, userID)
	if err != nil {
		return err
	}
	return s.rejected(userID, checkSubmissionLimit(op, plan, limits, row))
}

// CanCreateCampaign checks the three campaign limits in order.
func (s *quotaService) CanCreateCampaign(ctx context.Context, userID string, recipientCount int) error {
	const op = "QuotaService.CanCreateCampaign"

	plan, limits, row, err := s.load(ctx, op, userID)
	if err != nil {
		return err
	}
	return s.rejected(userID, checkCampaignLimit(op, plan, limits, row, recipientCount))
}

// CheckFeatureAccess returns nil if the plan unlocks feature.
func (s *quotaService) CheckFeatureAccess(ctx context.Context, userID string, feature domain.Feature) error {
	const op = "QuotaService.CheckFeatureAccess"

	plan, limits, err := loadPlan(ctx, s.store, op, userID)
	if err != nil {
		return err
	}
	return s.rejected(userID, checkFeature(op, plan, limits, feature))
}

func (s *quotaService) load(ctx context.Context, op, userID string) (domain.Plan, domain.PlanQuota, repository.Quota, error) {
	plan, limits, err := loadPlan(ctx, s.store, op, userID)
	if err != nil {
		return "", domain.PlanQuota{}, repository.Quota{}, err
	}
	row, err := ensureQuota(ctx, s.store, userID, domain.PeriodOf(s.clock.Now()))
	if err != nil {
		return "", domain.PlanQuota{}, repository.Quota{}, domain.Internal(err, op, "failed to load quota")
	}
	return plan, limits, row, nil
}

func (s *quotaService) rejected(userID string, err error) error {
	return quotaRejected(s.logger, userID, err)
}

// quotaRejected logs and counts quota rejections, passing err through.
func quotaRejected(logger *slog.Logger, userID string, err error) error {
	if reason, ok := domain.QuotaReasonOf(err); ok {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(reason)).Inc()
		logger.Info("quota check rejected",
			"user_id", userID,
			"reason", reason,
		)
	}
	return err
}

// =============================================================================
// Ledger helpers
//
// These take a Querier so they run the same way on the pool or inside a
// transaction opened by another service.
// =============================================================================

func periodParams(userID string, p domain.Period) repository.GetQuotaParams {
	return repository.GetQuotaParams{
		UserID: userID,
		Year:   int32(p.Year),
		Month:  int32(p.Month),
	}
}

// ensureQuota returns the row for (userID, period), creating it if absent.
// A new row carries formCount and campaignCount over from the previous
// period's row: both count resources that still exist, and only the
// billing-cycle reset deletes those resources.
func ensureQuota(ctx context.Context, q repository.Querier, userID string, period domain.Period) (repository.Quota, error) {
	row, err := q.GetQuota(ctx, periodParams(userID, period))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return repository.Quota{}, fmt.Errorf("get quota: %w", err)
	}

	var carry repository.Quota
	prev, err := q.GetQuota(ctx, periodParams(userID, period.Previous()))
	switch {
	case err == nil:
		carry = prev
	case !errors.Is(err, sql.ErrNoRows):
		return repository.Quota{}, fmt.Errorf("get previous quota: %w", err)
	}

	// Concurrent first access in a new period both reach here; the unique
	// key makes exactly one insert win and the other a no-op.
	if _, err := q.CreateQuotaIfAbsent(ctx, repository.CreateQuotaParams{
		UserID:        userID,
		Year:          int32(period.Year),
		Month:         int32(period.Month),
		FormCount:     carry.FormCount,
		CampaignCount: carry.CampaignCount,
	}); err != nil {
		return repository.Quota{}, fmt.Errorf("create quota: %w", err)
	}

	row, err = q.GetQuota(ctx, periodParams(userID, period))
	if err != nil {
		return repository.Quota{}, fmt.Errorf("get created quota: %w", err)
	}
	return row, nil
}

// lockQuota ensures the period row exists and locks it for the rest of the
// surrounding transaction.
func lockQuota(ctx context.Context, q repository.Querier, userID string, period domain.Period) (repository.Quota, error) {
	if _, err := ensureQuota(ctx, q, userID, period); err != nil {
		return repository.Quota{}, err
	}
	row, err := q.GetQuotaForUpdate(ctx, periodParams(userID, period))
	if err != nil {
		return repository.Quota{}, fmt.Errorf("lock quota: %w", err)
	}
	return row, nil
}

// incrementQuota applies delta to the period row in one UPDATE.
func incrementQuota(ctx context.Context, q repository.Querier, userID string, period domain.Period, delta domain.QuotaDelta) error {
	if delta.IsZero() {
		return nil
	}
	if _, err := ensureQuota(ctx, q, userID, period); err != nil {
		return err
	}
	n, err := q.IncrementQuota(ctx, repository.IncrementQuotaParams{
		UserID:      userID,
		Year:        int32(period.Year),
		Month:       int32(period.Month),
		Submissions: int32(delta.Submissions),
		Forms:       int32(delta.Forms),
		Campaigns:   int32(delta.Campaigns),
		Emails:      int32(delta.Emails),
		Opens:       int32(delta.Opens),
		Clicks:      int32(delta.Clicks),
	})
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	if n == 0 {
		// The row was deleted between ensure and update (a concurrent reset).
		return fmt.Errorf("increment quota: no row for %s %s", userID, period)
	}
	return nil
}

// loadPlan resolves the user's plan and its limits. A stored plan value
// with no catalog entry is an internal error, never a default.
func loadPlan(ctx context.Context, q repository.Querier, op, userID string) (domain.Plan, domain.PlanQuota, error) {
	user, err := q.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.PlanQuota{}, domain.NotFound(op, "user", userID)
		}
		return "", domain.PlanQuota{}, domain.Internal(err, op, "failed to load user")
	}

	plan, err := domain.ParsePlan(user.Plan)
	if err != nil {
		return "", domain.PlanQuota{}, domain.Internal(err, op, "user has an unknown plan")
	}
	limits, err := domain.GetQuotaByPlan(plan)
	if err != nil {
		return "", domain.PlanQuota{}, domain.Internal(err, op, "no limits for plan")
	}
	return plan, limits, nil
}

// =============================================================================
// Gate checks
// =============================================================================

func checkFormLimit(op string, plan domain.Plan, limits domain.PlanQuota, row repository.Quota) error {
	used, limit := int64(row.FormCount), int64(limits.MaxForms)
	if used >= limit {
		return domain.QuotaExceeded(op, domain.QuotaReasonFormLimit, plan, used, limit)
	}
	return nil
}

func checkSubmissionLimit(op string, plan domain.Plan, limits domain.PlanQuota, row repository.Quota) error {
	used, limit := int64(row.SubmissionCount), int64(limits.MaxSubmissionsPerMonth)
	if used >= limit {
		return domain.QuotaExceeded(op, domain.QuotaReasonSubmissionLimit, plan, used, limit)
	}
	return nil
}

func checkCampaignLimit(op string, plan domain.Plan, limits domain.PlanQuota, row repository.Quota, recipientCount int) error {
	c := limits.Campaigns
	if !c.Enabled {
		return domain.QuotaExceeded(op, domain.QuotaReasonCampaignsDisabled, plan, 0, 0)
	}
	used, limit := int64(row.CampaignCount), int64(c.MaxCampaignsPerMonth)
	if used >= limit {
		return domain.QuotaExceeded(op, domain.QuotaReasonCampaignLimit, plan, used, limit)
	}
	if recipientCount > c.MaxRecipientsPerCampaign {
		return domain.QuotaExceeded(op, domain.QuotaReasonRecipientLimit, plan,
			int64(recipientCount), int64(c.MaxRecipientsPerCampaign))
	}
	return nil
}

func checkFeature(op string, plan domain.Plan, limits domain.PlanQuota, feature domain.Feature) error {
	ok, err := limits.HasFeature(feature)
	if err != nil {
		return err
	}
	if !ok {
		return domain.QuotaExceeded(op, domain.QuotaReasonFeatureUnavailable, plan, 0, 0)
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

func quotaToDomain(row repository.Quota) *domain.Quota {
	return &domain.Quota{
		UserID:          row.UserID,
		Period:          domain.Period{Year: int(row.Year), Month: time.Month(row.Month)},
		SubmissionCount: int64(row.SubmissionCount),
		FormCount:       int64(row.FormCount),
		CampaignCount:   int64(row.CampaignCount),
		EmailsSent:      int64(row.EmailsSent),
		EmailsOpened:    int64(row.EmailsOpened),
		EmailsClicked:   int64(row.EmailsClicked),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// checkAPIAccess rejects a public API capability the plan does not unlock.
func checkAPIAccess(op string, plan domain.Plan, allowed bool) error {
	if !allowed {
		return domain.QuotaExceeded(op, domain.QuotaReasonFeatureUnavailable, plan, 0, 0)
	}
	return nil
}
