package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/worker"
)

// NotificationHandler processes submission_notification jobs. It sends the
// submitter confirmation and the developer notification for one submission
// and records every attempt in the notification log.
type NotificationHandler struct {
	queries repository.Querier
	mailer  *email.Mailer
	quota   QuotaUpdater
	logger  *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(queries repository.Querier, mailer *email.Mailer, quota QuotaUpdater, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		queries: queries,
		mailer:  mailer,
		quota:   quota,
		logger:  logger,
	}
}

// Type returns the job type this handler processes.
func (h *NotificationHandler) Type() string {
	return worker.JobTypeSubmissionNotification
}

// Handle sends the notification emails for a submission.
//
// Send failures are logged and recorded, not returned: a retry would resend
// the email that did go out.
func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.SubmissionNotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	submission, err := h.queries.GetSubmission(ctx, p.SubmissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("submission %s not found", p.SubmissionID))
		}
		return fmt.Errorf("get submission: %w", err)
	}

	form, err := h.queries.GetForm(ctx, submission.FormID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("form %s not found", submission.FormID))
		}
		return fmt.Errorf("get form: %w", err)
	}

	settings, err := h.queries.GetEmailSettingsByForm(ctx, form.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get email settings: %w", err)
	}

	// Every lookup that can fail transiently happens before the first send,
	// so a retried job never repeats an email that already went out.
	developer := domain.NullStringValue(settings.DeveloperEmail)
	var owner repository.User
	if developer != "" {
		owner, err = h.queries.GetUser(ctx, form.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return worker.NewPermanentError(fmt.Errorf("form owner %s not found", form.UserID))
			}
			return fmt.Errorf("get form owner: %w", err)
		}
	}

	var sent int64

	if settings.ConfirmationEnabled {
		if h.sendConfirmation(ctx, form, submission, settings) {
			sent++
		}
	}

	if developer != "" {
		if h.sendDeveloperNotification(ctx, form, submission, owner, developer) {
			sent++
		}
	}

	if sent > 0 {
		if err := h.quota.UpdateQuota(ctx, form.UserID, domain.QuotaDelta{Emails: sent}); err != nil {
			h.logger.Warn("failed to count notification emails", "error", err, "user_id", form.UserID)
		}
	}
	return nil
}

func (h *NotificationHandler) sendConfirmation(ctx context.Context, form repository.Form, sub repository.Submission, settings repository.EmailSetting) bool {
	kind := domain.NotificationSubmissionConfirmation

	to := domain.NullStringValue(sub.Email)
	if to == "" {
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusSkipped, "submission has no email address")
		return false
	}

	err := h.mailer.SendSubmissionConfirmation(ctx, email.SubmissionConfirmation{
		To:          to,
		FormName:    form.Name,
		SubmittedAt: sub.CreatedAt,
		From:        domain.NullStringValue(settings.FromEmail),
	})
	if err != nil {
		h.logger.Warn("submission confirmation failed", "error", err, "submission_id", sub.ID)
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusFailed, errorString(err))
		return false
	}
	h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusSent, "")
	return true
}

func (h *NotificationHandler) sendDeveloperNotification(ctx context.Context, form repository.Form, sub repository.Submission, owner repository.User, to string) bool {
	kind := domain.NotificationDeveloperNotification

	plan, err := domain.ParsePlan(owner.Plan)
	if err != nil {
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusFailed, errorString(err))
		return false
	}
	if plan == domain.PlanFree {
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusSkipped, "developer notifications require a paid plan")
		return false
	}

	var data map[string]any
	if err := json.Unmarshal(sub.Data, &data); err != nil {
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusFailed, errorString(err))
		return false
	}

	err = h.mailer.SendDeveloperNotification(ctx, email.DeveloperNotification{
		To:          to,
		FormID:      form.ID.String(),
		FormName:    form.Name,
		Data:        data,
		SubmittedAt: sub.CreatedAt,
		ReplyTo:     domain.NullStringValue(sub.Email),
	})
	if err != nil {
		h.logger.Warn("developer notification failed", "error", err, "submission_id", sub.ID)
		h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusFailed, errorString(err))
		return false
	}
	h.record(ctx, form.ID, sub.ID, kind, domain.NotificationStatusSent, "")
	return true
}

// record appends a notification log entry. A failure to write the log does
// not fail the job.
func (h *NotificationHandler) record(ctx context.Context, formID, submissionID uuid.UUID, kind domain.NotificationType, status domain.NotificationStatus, reason string) {
	metrics.NotificationsTotal.WithLabelValues(string(kind), string(status)).Inc()

	_, err := h.queries.CreateNotificationLog(ctx, repository.CreateNotificationLogParams{
		ID:           uuid.New(),
		FormID:       formID,
		SubmissionID: uuid.NullUUID{UUID: submissionID, Valid: true},
		Type:         string(kind),
		Status:       string(status),
		Error:        domain.ToNullString(reason),
	})
	if err != nil {
		h.logger.Error("failed to write notification log",
			"error", err,
			"form_id", formID,
			"submission_id", submissionID,
			"type", kind,
		)
	}
}

var _ worker.JobHandler = (*NotificationHandler)(nil)
