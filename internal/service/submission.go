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
	"github.com/mantlz/mantlz/internal/worker"
)

// SubmissionService defines the interface for submission ingestion and listing.
type SubmissionService interface {
	// Submit stores a submission if the form owner's monthly quota allows it.
	// Notification emails are queued after commit and never fail the call.
	Submit(ctx context.Context, params domain.SubmitParams) (*domain.Submission, error)

	// List returns a page of a form's submissions. Date filtering and
	// metadata are limited by the owner's API access.
	List(ctx context.Context, params domain.ListSubmissionsParams) (*domain.ListSubmissionsResult, error)
}

type submissionService struct {
	store  repository.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(store repository.Store, clock domain.Clock, logger *slog.Logger) SubmissionService {
	return &submissionService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Submit runs the ingestion path: ownership, enrichment, then the quota
// check, insert and increment in one transaction.
func (s *submissionService) Submit(ctx context.Context, params domain.SubmitParams) (*domain.Submission, error) {
	const op = "SubmissionService.Submit"

	if params.Data == nil {
		return nil, domain.Invalid(op, "Submission data is required")
	}

	form, err := s.store.GetForm(ctx, params.FormID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "form", params.FormID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve form")
	}
	if form.UserID != params.UserID {
		return nil, domain.NotFound(op, "form", params.FormID.String())
	}

	now := params.RequestAt
	if now.IsZero() {
		now = s.clock.Now()
	}
	meta := params.Meta
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now.UTC()
	}
	if meta.Country == "" {
		meta.Country = domain.CountryUnknown
	}

	data, err := domain.EnrichSubmissionData(params.Data, meta)
	if err != nil {
		return nil, domain.Invalid(op, "Submission data must be JSON serializable")
	}
	email := domain.ExtractEmail(params.Data)

	var created repository.Submission
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		plan, limits, err := loadPlan(ctx, q, op, form.UserID)
		if err != nil {
			return err
		}
		period := domain.PeriodOf(s.clock.Now())
		row, err := lockQuota(ctx, q, form.UserID, period)
		if err != nil {
			return err
		}
		if err := checkSubmissionLimit(op, plan, limits, row); err != nil {
			return err
		}

		created, err = q.CreateSubmission(ctx, repository.CreateSubmissionParams{
			ID:        uuid.New(),
			FormID:    form.ID,
			Data:      data,
			Email:     toNullString(email),
			IpAddress: toNullString(meta.IP),
			CreatedAt: now.UTC(),
		})
		if err != nil {
			return err
		}
		return incrementQuota(ctx, q, form.UserID, period, domain.QuotaDelta{Submissions: 1})
	})
	if err != nil {
		if _, ok := domain.QuotaReasonOf(err); ok {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, quotaRejected(s.logger, form.UserID, err)
		}
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		if domain.ErrorCode(err) != domain.EINTERNAL {
			return nil, err
		}
		s.logger.Error("failed to store submission", "error", err, "op", op, "form_id", form.ID)
		return nil, domain.Internal(err, op, "Failed to store submission")
	}
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

	if _, err := worker.EnqueueSubmissionNotification(ctx, s.store, worker.SubmissionNotificationPayload{
		SubmissionID: created.ID,
		FormID:       form.ID,
		UserID:       form.UserID,
	}); err != nil {
		s.logger.Warn("failed to enqueue submission notification",
			"error", err,
			"submission_id", created.ID,
			"form_id", form.ID,
		)
	}

	s.logger.Info("submission stored", "submission_id", created.ID, "form_id", form.ID)
	sub := repoSubmissionToDomain(created)
	return &sub, nil
}

// List returns a page of a form's submissions.
func (s *submissionService) List(ctx context.Context, params domain.ListSubmissionsParams) (*domain.ListSubmissionsResult, error) {
	const op = "SubmissionService.List"

	plan, limits, err := loadPlan(ctx, s.store, op, params.UserID)
	if err != nil {
		return nil, err
	}
	if params.Since != nil || params.Until != nil {
		if err := checkAPIAccess(op, plan, limits.API.DateFiltering); err != nil {
			return nil, quotaRejected(s.logger, params.UserID, err)
		}
	}
	if _, err := getOwnedForm(ctx, s.store, op, params.FormID, params.UserID); err != nil {
		return nil, err
	}

	limit := clampPageSize(params.Limit, limits.API.MaxPageSize)
	offset := max(params.Offset, 0)
	since, until := domain.ToNullTime(params.Since), domain.ToNullTime(params.Until)

	rows, err := s.store.ListSubmissionsByForm(ctx, repository.ListSubmissionsByFormParams{
		FormID: params.FormID,
		Since:  since,
		Until:  until,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list submissions", "error", err, "op", op, "form_id", params.FormID)
		return nil, domain.Internal(err, op, "Failed to list submissions")
	}
	total, err := s.store.CountSubmissionsByForm(ctx, repository.CountSubmissionsByFormParams{
		FormID: params.FormID,
		Since:  since,
		Until:  until,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count submissions")
	}

	// Metadata is only returned when asked for and unlocked by the plan.
	withMeta := params.IncludeMeta && limits.API.Metadata
	subs := make([]domain.Submission, len(rows))
	for i, r := range rows {
		subs[i] = repoSubmissionToDomain(r)
		if !withMeta {
			subs[i].Data = domain.StripMeta(subs[i].Data)
		}
	}

	return &domain.ListSubmissionsResult{
		Submissions: subs,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	}, nil
}

func repoSubmissionToDomain(r repository.Submission) domain.Submission {
	return domain.Submission{
		ID:           r.ID,
		FormID:       r.FormID,
		Data:         r.Data,
		Email:        domain.NullStringValue(r.Email),
		Unsubscribed: r.Unsubscribed,
		CreatedAt:    r.CreatedAt,
	}
}
