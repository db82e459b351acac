package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// MaxFormNameLength bounds form names.
const MaxFormNameLength = 255

// FormService defines the interface for form-related operations.
type FormService interface {
	// Create creates a form if the user's plan has room for another one.
	// Returns a quota error (domain.EFORBIDDEN) when the form limit is reached.
	Create(ctx context.Context, params domain.CreateFormParams) (*domain.Form, error)

	// GetByID retrieves a form by ID, verifying user ownership.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Form, error)

	// List retrieves all forms for a user with their submission counts.
	List(ctx context.Context, userID string) ([]domain.Form, error)

	// Delete deletes a form and everything attached to it.
	Delete(ctx context.Context, id uuid.UUID, userID string) error

	// EmailSettings returns the form's notification settings, or nil when
	// the form has none.
	EmailSettings(ctx context.Context, formID uuid.UUID) (*domain.EmailSettings, error)

	// Analytics aggregates the form's submissions. Requires API analytics access.
	Analytics(ctx context.Context, id uuid.UUID, userID string) (*domain.FormAnalytics, error)

	// Logs lists the form's notification logs. Requires API logs access.
	Logs(ctx context.Context, id uuid.UUID, userID string, limit, offset int32) ([]domain.NotificationLog, error)
}

type formService struct {
	store  repository.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewFormService creates a new FormService.
func NewFormService(store repository.Store, clock domain.Clock, logger *slog.Logger) FormService {
	return &formService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Create checks the form limit, inserts the form and its settings, and
// counts it against the current period in one transaction.
func (s *formService) Create(ctx context.Context, params domain.CreateFormParams) (*domain.Form, error) {
	const op = "FormService.Create"

	if err := validateFormParams(op, &params); err != nil {
		return nil, err
	}

	period := domain.PeriodOf(s.clock.Now())
	var created repository.Form
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		plan, limits, err := loadPlan(ctx, q, op, params.UserID)
		if err != nil {
			return err
		}
		row, err := lockQuota(ctx, q, params.UserID, period)
		if err != nil {
			return err
		}
		if err := checkFormLimit(op, plan, limits, row); err != nil {
			return err
		}

		created, err = q.CreateForm(ctx, repository.CreateFormParams{
			ID:          uuid.New(),
			UserID:      params.UserID,
			Name:        params.Name,
			Description: toNullString(params.Description),
			FormType:    string(params.FormType),
			Settings:    toNullRawMessage(params.Settings),
		})
		if err != nil {
			return err
		}
		if _, err := q.CreateEmailSettings(ctx, repository.CreateEmailSettingsParams{
			ID:                  uuid.New(),
			FormID:              created.ID,
			ConfirmationEnabled: params.ConfirmationEnabled,
			DeveloperEmail:      toNullString(params.DeveloperEmail),
		}); err != nil {
			return err
		}
		return incrementQuota(ctx, q, params.UserID, period, domain.QuotaDelta{Forms: 1})
	})
	if err != nil {
		if domain.ErrorCode(err) != domain.EINTERNAL {
			return nil, quotaRejected(s.logger, params.UserID, err)
		}
		s.logger.Error("failed to create form", "error", err, "op", op, "user_id", params.UserID)
		return nil, domain.Internal(err, op, "Failed to create form")
	}

	metrics.FormsCreated.Inc()
	form := repoFormToDomain(created)
	s.logger.Info("form created", "form_id", form.ID, "user_id", form.UserID, "name", form.Name)
	return &form, nil
}

// GetByID retrieves a form by ID, verifying user ownership.
func (s *formService) GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Form, error) {
	const op = "FormService.GetByID"

	f, err := getOwnedForm(ctx, s.store, op, id, userID)
	if err != nil {
		return nil, err
	}
	form := repoFormToDomain(f)
	return &form, nil
}

// List retrieves all forms for a user, newest first.
func (s *formService) List(ctx context.Context, userID string) ([]domain.Form, error) {
	const op = "FormService.List"

	rows, err := s.store.ListFormsByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list forms", "error", err, "op", op, "user_id", userID)
		return nil, domain.Internal(err, op, "Failed to list forms")
	}

	forms := make([]domain.Form, len(rows))
	for i, r := range rows {
		forms[i] = repoFormToDomain(r.Form)
		forms[i].SubmissionCount = r.SubmissionCount
	}
	return forms, nil
}

// Delete deletes a form and releases its slot in the form count.
func (s *formService) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	const op = "FormService.Delete"

	period := domain.PeriodOf(s.clock.Now())
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		n, err := q.DeleteFormByIDAndUser(ctx, repository.GetFormByIDAndUserParams{ID: id, UserID: userID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFound(op, "form", id.String())
		}
		// form_count tracks existing forms, so deleting one frees a slot.
		return incrementQuota(ctx, q, userID, period, domain.QuotaDelta{Forms: -1})
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return err
		}
		s.logger.Error("failed to delete form", "error", err, "op", op, "form_id", id)
		return domain.Internal(err, op, "Failed to delete form")
	}

	s.logger.Info("form deleted", "form_id", id, "user_id", userID)
	return nil
}

// EmailSettings returns the form's notification settings.
func (s *formService) EmailSettings(ctx context.Context, formID uuid.UUID) (*domain.EmailSettings, error) {
	const op = "FormService.EmailSettings"

	es, err := s.store.GetEmailSettingsByForm(ctx, formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, op, "Failed to load email settings")
	}
	return &domain.EmailSettings{
		FormID:              es.FormID,
		ConfirmationEnabled: es.ConfirmationEnabled,
		DeveloperEmail:      domain.NullStringValue(es.DeveloperEmail),
		FromEmail:           domain.NullStringValue(es.FromEmail),
	}, nil
}

// Analytics aggregates the form's submissions over the default window.
func (s *formService) Analytics(ctx context.Context, id uuid.UUID, userID string) (*domain.FormAnalytics, error) {
	const op = "FormService.Analytics"

	plan, limits, err := loadPlan(ctx, s.store, op, userID)
	if err != nil {
		return nil, err
	}
	if err := checkAPIAccess(op, plan, limits.API.Analytics); err != nil {
		return nil, quotaRejected(s.logger, userID, err)
	}
	if _, err := getOwnedForm(ctx, s.store, op, id, userID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListAllSubmissionsByForm(ctx, id)
	if err != nil {
		s.logger.Error("failed to load submissions", "error", err, "op", op, "form_id", id)
		return nil, domain.Internal(err, op, "Failed to load submissions")
	}
	subs := make([]domain.Submission, len(rows))
	for i, r := range rows {
		subs[i] = repoSubmissionToDomain(r)
	}

	a := domain.ComputeFormAnalytics(subs, s.clock.Now(), domain.DefaultAnalyticsDays)
	return &a, nil
}

// Logs lists the form's notification logs, newest first.
func (s *formService) Logs(ctx context.Context, id uuid.UUID, userID string, limit, offset int32) ([]domain.NotificationLog, error) {
	const op = "FormService.Logs"

	plan, limits, err := loadPlan(ctx, s.store, op, userID)
	if err != nil {
		return nil, err
	}
	if err := checkAPIAccess(op, plan, limits.API.Logs); err != nil {
		return nil, quotaRejected(s.logger, userID, err)
	}
	if _, err := getOwnedForm(ctx, s.store, op, id, userID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListNotificationLogsByForm(ctx, repository.ListNotificationLogsByFormParams{
		FormID: id,
		Limit:  clampPageSize(limit, limits.API.MaxPageSize),
		Offset: max(offset, 0),
	})
	if err != nil {
		s.logger.Error("failed to list notification logs", "error", err, "op", op, "form_id", id)
		return nil, domain.Internal(err, op, "Failed to list logs")
	}

	logs := make([]domain.NotificationLog, len(rows))
	for i, r := range rows {
		logs[i] = domain.NotificationLog{
			ID:           r.ID,
			FormID:       r.FormID,
			Type:         domain.NotificationType(r.Type),
			Status:       domain.NotificationStatus(r.Status),
			Error:        domain.NullStringValue(r.Error),
			CreatedAt:    r.CreatedAt,
			SubmissionID: nullUUIDPtr(r.SubmissionID),
		}
	}
	return logs, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// validateFormParams normalizes and validates form creation input.
func validateFormParams(op string, p *domain.CreateFormParams) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.DeveloperEmail = strings.TrimSpace(p.DeveloperEmail)

	fields := make(map[string]string)
	if p.Name == "" {
		fields["name"] = "Name is required"
	} else if len(p.Name) > MaxFormNameLength {
		fields["name"] = "Name must be 255 characters or less"
	}
	if p.FormType == "" {
		p.FormType = domain.FormTypeCustom
	}
	if !p.FormType.IsValid() {
		fields["formType"] = "Unknown form type"
	}
	if len(p.Settings) > 0 && !json.Valid(p.Settings) {
		fields["settings"] = "Settings must be valid JSON"
	}
	if p.DeveloperEmail != "" && !strings.Contains(p.DeveloperEmail, "@") {
		fields["developerEmail"] = "Invalid email address"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Op: op, Fields: fields}
	}
	return nil
}

// getOwnedForm loads a form, reporting forms owned by someone else as not found.
func getOwnedForm(ctx context.Context, q repository.Querier, op string, id uuid.UUID, userID string) (repository.Form, error) {
	f, err := q.GetFormByIDAndUser(ctx, repository.GetFormByIDAndUserParams{ID: id, UserID: userID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Form{}, domain.NotFound(op, "form", id.String())
		}
		return repository.Form{}, domain.Internal(err, op, "Failed to retrieve form")
	}
	return f, nil
}

// clampPageSize bounds a requested page size to (0, max].
func clampPageSize(limit int32, maxSize int) int32 {
	if limit <= 0 || int(limit) > maxSize {
		return int32(maxSize)
	}
	return limit
}

func repoFormToDomain(f repository.Form) domain.Form {
	var settings json.RawMessage
	if f.Settings.Valid {
		settings = f.Settings.RawMessage
	}
	return domain.Form{
		ID:          f.ID,
		UserID:      f.UserID,
		Name:        f.Name,
		Description: domain.NullStringValue(f.Description),
		FormType:    domain.FormType(f.FormType),
		Settings:    settings,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func toNullRawMessage(m json.RawMessage) pqtype.NullRawMessage {
	if len(m) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: m, Valid: true}
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
