package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const campaignColumns = `id, form_id, user_id, name, subject, content, status, recipient_limit, scheduled_at, sent_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (Campaign, error) {
	var i Campaign
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.UserID,
		&i.Name,
		&i.Subject,
		&i.Content,
		&i.Status,
		&i.RecipientLimit,
		&i.ScheduledAt,
		&i.SentAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCampaign = `-- name: CreateCampaign :one
INSERT INTO campaigns (id, form_id, user_id, name, subject, content, status, recipient_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + campaignColumns + `
`

type CreateCampaignParams struct {
	ID             uuid.UUID     `json:"id"`
	FormID         uuid.UUID     `json:"form_id"`
	UserID         string        `json:"user_id"`
	Name           string        `json:"name"`
	Subject        string        `json:"subject"`
	Content        string        `json:"content"`
	Status         string        `json:"status"`
	RecipientLimit sql.NullInt32 `json:"recipient_limit"`
}

func (q *Queries) CreateCampaign(ctx context.Context, arg CreateCampaignParams) (Campaign, error) {
	return scanCampaign(q.db.QueryRowContext(ctx, createCampaign,
		arg.ID,
		arg.FormID,
		arg.UserID,
		arg.Name,
		arg.Subject,
		arg.Content,
		arg.Status,
		arg.RecipientLimit,
	))
}

const getCampaignByIDAndUser = `-- name: GetCampaignByIDAndUser :one
SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 AND user_id = $2
`

type GetCampaignByIDAndUserParams struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
}

func (q *Queries) GetCampaignByIDAndUser(ctx context.Context, arg GetCampaignByIDAndUserParams) (Campaign, error) {
	return scanCampaign(q.db.QueryRowContext(ctx, getCampaignByIDAndUser, arg.ID, arg.UserID))
}

const scheduleCampaign = `-- name: ScheduleCampaign :execrows
UPDATE campaigns
SET status = 'SCHEDULED', scheduled_at = $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2 AND status = 'DRAFT'
`

type ScheduleCampaignParams struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ScheduleCampaign moves a DRAFT campaign to SCHEDULED. Zero rows means the
// campaign was not a draft.
func (q *Queries) ScheduleCampaign(ctx context.Context, arg ScheduleCampaignParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, scheduleCampaign, arg.ID, arg.UserID, arg.ScheduledAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDueCampaigns = `-- name: ListDueCampaigns :many
SELECT ` + campaignColumns + ` FROM campaigns
WHERE status = 'SCHEDULED' AND scheduled_at <= $1
ORDER BY scheduled_at
`

func (q *Queries) ListDueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error) {
	rows, err := q.db.QueryContext(ctx, listDueCampaigns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Campaign
	for rows.Next() {
		i, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const claimCampaign = `-- name: ClaimCampaign :execrows
UPDATE campaigns SET status = 'SENDING', updated_at = NOW()
WHERE id = $1 AND status = 'SCHEDULED'
`

// ClaimCampaign transitions SCHEDULED -> SENDING. Zero rows means another
// run claimed it first.
func (q *Queries) ClaimCampaign(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimCampaign, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const touchCampaign = `-- name: TouchCampaign :exec
UPDATE campaigns SET updated_at = NOW() WHERE id = $1 AND status = 'SENDING'
`

// TouchCampaign marks a SENDING campaign as still in progress.
func (q *Queries) TouchCampaign(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, touchCampaign, id)
	return err
}

const requeueStaleCampaigns = `-- name: RequeueStaleCampaigns :execrows
UPDATE campaigns SET status = 'SCHEDULED', updated_at = NOW()
WHERE status = 'SENDING' AND updated_at < $1
`

// RequeueStaleCampaigns returns SENDING campaigns not touched since cutoff
// to SCHEDULED so the next run resumes their pending recipients.
func (q *Queries) RequeueStaleCampaigns(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, requeueStaleCampaigns, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const finishCampaign = `-- name: FinishCampaign :exec
UPDATE campaigns SET status = $2, sent_at = $3, updated_at = NOW() WHERE id = $1
`

type FinishCampaignParams struct {
	ID     uuid.UUID    `json:"id"`
	Status string       `json:"status"`
	SentAt sql.NullTime `json:"sent_at"`
}

func (q *Queries) FinishCampaign(ctx context.Context, arg FinishCampaignParams) error {
	_, err := q.db.ExecContext(ctx, finishCampaign, arg.ID, arg.Status, arg.SentAt)
	return err
}

const deleteCampaignsByUser = `-- name: DeleteCampaignsByUser :exec
DELETE FROM campaigns WHERE user_id = $1
`

func (q *Queries) DeleteCampaignsByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteCampaignsByUser, userID)
	return err
}

// =============================================================================
// Recipients
// =============================================================================

const recipientColumns = `id, campaign_id, submission_id, email, status, error, sent_at, created_at`

const countCampaignRecipients = `-- name: CountCampaignRecipients :one
SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = $1
`

func (q *Queries) CountCampaignRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCampaignRecipients, campaignID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createCampaignRecipient = `-- name: CreateCampaignRecipient :one
INSERT INTO campaign_recipients (id, campaign_id, submission_id, email)
VALUES ($1, $2, $3, $4)
RETURNING ` + recipientColumns + `
`

type CreateCampaignRecipientParams struct {
	ID           uuid.UUID `json:"id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	Email        string    `json:"email"`
}

func (q *Queries) CreateCampaignRecipient(ctx context.Context, arg CreateCampaignRecipientParams) (CampaignRecipient, error) {
	row := q.db.QueryRowContext(ctx, createCampaignRecipient,
		arg.ID,
		arg.CampaignID,
		arg.SubmissionID,
		arg.Email,
	)
	var i CampaignRecipient
	err := row.Scan(
		&i.ID,
		&i.CampaignID,
		&i.SubmissionID,
		&i.Email,
		&i.Status,
		&i.Error,
		&i.SentAt,
		&i.CreatedAt,
	)
	return i, err
}

const listPendingRecipients = `-- name: ListPendingRecipients :many
SELECT ` + recipientColumns + ` FROM campaign_recipients
WHERE campaign_id = $1 AND status = 'PENDING'
ORDER BY created_at, id
`

func (q *Queries) ListPendingRecipients(ctx context.Context, campaignID uuid.UUID) ([]CampaignRecipient, error) {
	rows, err := q.db.QueryContext(ctx, listPendingRecipients, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CampaignRecipient
	for rows.Next() {
		var i CampaignRecipient
		if err := rows.Scan(
			&i.ID,
			&i.CampaignID,
			&i.SubmissionID,
			&i.Email,
			&i.Status,
			&i.Error,
			&i.SentAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markRecipientSent = `-- name: MarkRecipientSent :exec
UPDATE campaign_recipients SET status = 'SENT', sent_at = $2, error = NULL WHERE id = $1
`

type MarkRecipientSentParams struct {
	ID     uuid.UUID `json:"id"`
	SentAt time.Time `json:"sent_at"`
}

func (q *Queries) MarkRecipientSent(ctx context.Context, arg MarkRecipientSentParams) error {
	_, err := q.db.ExecContext(ctx, markRecipientSent, arg.ID, arg.SentAt)
	return err
}

const markRecipientFailed = `-- name: MarkRecipientFailed :exec
UPDATE campaign_recipients SET status = 'FAILED', error = $2 WHERE id = $1
`

type MarkRecipientFailedParams struct {
	ID    uuid.UUID      `json:"id"`
	Error sql.NullString `json:"error"`
}

func (q *Queries) MarkRecipientFailed(ctx context.Context, arg MarkRecipientFailedParams) error {
	_, err := q.db.ExecContext(ctx, markRecipientFailed, arg.ID, arg.Error)
	return err
}

const deleteCampaignRecipientsByUser = `-- name: DeleteCampaignRecipientsByUser :exec
DELETE FROM campaign_recipients
WHERE campaign_id IN (SELECT id FROM campaigns WHERE user_id = $1)
`

func (q *Queries) DeleteCampaignRecipientsByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteCampaignRecipientsByUser, userID)
	return err
}

// =============================================================================
// Sent email tracking
// =============================================================================

const sentEmailColumns = `id, campaign_id, recipient_id, submission_id, user_id, opened_at, clicked_at, created_at`

func scanSentEmail(row interface{ Scan(...interface{}) error }) (SentEmail, error) {
	var i SentEmail
	err := row.Scan(
		&i.ID,
		&i.CampaignID,
		&i.RecipientID,
		&i.SubmissionID,
		&i.UserID,
		&i.OpenedAt,
		&i.ClickedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createSentEmail = `-- name: CreateSentEmail :one
INSERT INTO sent_emails (id, campaign_id, recipient_id, submission_id, user_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + sentEmailColumns + `
`

type CreateSentEmailParams struct {
	ID           uuid.UUID `json:"id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	RecipientID  uuid.UUID `json:"recipient_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	UserID       string    `json:"user_id"`
}

func (q *Queries) CreateSentEmail(ctx context.Context, arg CreateSentEmailParams) (SentEmail, error) {
	return scanSentEmail(q.db.QueryRowContext(ctx, createSentEmail,
		arg.ID,
		arg.CampaignID,
		arg.RecipientID,
		arg.SubmissionID,
		arg.UserID,
	))
}

const getSentEmail = `-- name: GetSentEmail :one
SELECT ` + sentEmailColumns + ` FROM sent_emails WHERE id = $1
`

func (q *Queries) GetSentEmail(ctx context.Context, id uuid.UUID) (SentEmail, error) {
	return scanSentEmail(q.db.QueryRowContext(ctx, getSentEmail, id))
}

type MarkSentEmailEventParams struct {
	ID uuid.UUID `json:"id"`
	At time.Time `json:"at"`
}

const markSentEmailOpened = `-- name: MarkSentEmailOpened :execrows
UPDATE sent_emails SET opened_at = $2 WHERE id = $1 AND opened_at IS NULL
`

// MarkSentEmailOpened records the first open only.
func (q *Queries) MarkSentEmailOpened(ctx context.Context, arg MarkSentEmailEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSentEmailOpened, arg.ID, arg.At)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSentEmailClicked = `-- name: MarkSentEmailClicked :execrows
UPDATE sent_emails SET clicked_at = $2 WHERE id = $1 AND clicked_at IS NULL
`

// MarkSentEmailClicked records the first click only.
func (q *Queries) MarkSentEmailClicked(ctx context.Context, arg MarkSentEmailEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSentEmailClicked, arg.ID, arg.At)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSentEmailsByUser = `-- name: DeleteSentEmailsByUser :exec
DELETE FROM sent_emails WHERE user_id = $1
`

func (q *Queries) DeleteSentEmailsByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteSentEmailsByUser, userID)
	return err
}
