package repository

import (
	"context"
	"database/sql"
)

const quotaColumns = `id, user_id, year, month, submission_count, form_count, campaign_count, emails_sent, emails_opened, emails_clicked, created_at, updated_at`

func scanQuota(row interface{ Scan(...interface{}) error }) (Quota, error) {
	var i Quota
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Year,
		&i.Month,
		&i.SubmissionCount,
		&i.FormCount,
		&i.CampaignCount,
		&i.EmailsSent,
		&i.EmailsOpened,
		&i.EmailsClicked,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type GetQuotaParams struct {
	UserID string `json:"user_id"`
	Year   int32  `json:"year"`
	Month  int32  `json:"month"`
}

const getQuota = `-- name: GetQuota :one
SELECT ` + quotaColumns + ` FROM quotas
WHERE user_id = $1 AND year = $2 AND month = $3
`

func (q *Queries) GetQuota(ctx context.Context, arg GetQuotaParams) (Quota, error) {
	return scanQuota(q.db.QueryRowContext(ctx, getQuota, arg.UserID, arg.Year, arg.Month))
}

const getQuotaForUpdate = `-- name: GetQuotaForUpdate :one
SELECT ` + quotaColumns + ` FROM quotas
WHERE user_id = $1 AND year = $2 AND month = $3
FOR UPDATE
`

// GetQuotaForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetQuotaForUpdate(ctx context.Context, arg GetQuotaParams) (Quota, error) {
	return scanQuota(q.db.QueryRowContext(ctx, getQuotaForUpdate, arg.UserID, arg.Year, arg.Month))
}

type CreateQuotaParams struct {
	UserID        string `json:"user_id"`
	Year          int32  `json:"year"`
	Month         int32  `json:"month"`
	FormCount     int32  `json:"form_count"`
	CampaignCount int32  `json:"campaign_count"`
}

const createQuotaIfAbsent = `-- name: CreateQuotaIfAbsent :execrows
INSERT INTO quotas (user_id, year, month, form_count, campaign_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, year, month) DO NOTHING
`

// CreateQuotaIfAbsent inserts the period row unless one exists. It returns
// the number of rows inserted (0 or 1).
func (q *Queries) CreateQuotaIfAbsent(ctx context.Context, arg CreateQuotaParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createQuotaIfAbsent,
		arg.UserID,
		arg.Year,
		arg.Month,
		arg.FormCount,
		arg.CampaignCount,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createQuota = `-- name: CreateQuota :one
INSERT INTO quotas (user_id, year, month, form_count, campaign_count)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + quotaColumns + `
`

func (q *Queries) CreateQuota(ctx context.Context, arg CreateQuotaParams) (Quota, error) {
	return scanQuota(q.db.QueryRowContext(ctx, createQuota,
		arg.UserID,
		arg.Year,
		arg.Month,
		arg.FormCount,
		arg.CampaignCount,
	))
}

const incrementQuota = `-- name: IncrementQuota :execrows
UPDATE quotas
SET submission_count = GREATEST(submission_count + $4, 0),
    form_count       = GREATEST(form_count + $5, 0),
    campaign_count   = GREATEST(campaign_count + $6, 0),
    emails_sent      = emails_sent + $7,
    emails_opened    = emails_opened + $8,
    emails_clicked   = emails_clicked + $9,
    updated_at       = NOW()
WHERE user_id = $1 AND year = $2 AND month = $3
`

type IncrementQuotaParams struct {
	UserID      string `json:"user_id"`
	Year        int32  `json:"year"`
	Month       int32  `json:"month"`
	Submissions int32  `json:"submissions"`
	Forms       int32  `json:"forms"`
	Campaigns   int32  `json:"campaigns"`
	Emails      int32  `json:"emails"`
	Opens       int32  `json:"opens"`
	Clicks      int32  `json:"clicks"`
}

// IncrementQuota applies relative updates to one period row in a single
// statement. Resource counters are clamped at zero for decrements.
func (q *Queries) IncrementQuota(ctx context.Context, arg IncrementQuotaParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, incrementQuota,
		arg.UserID,
		arg.Year,
		arg.Month,
		arg.Submissions,
		arg.Forms,
		arg.Campaigns,
		arg.Emails,
		arg.Opens,
		arg.Clicks,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteQuotasByUser = `-- name: DeleteQuotasByUser :exec
DELETE FROM quotas WHERE user_id = $1
`

func (q *Queries) DeleteQuotasByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteQuotasByUser, userID)
	return err
}

type PeriodParams struct {
	Year  int32 `json:"year"`
	Month int32 `json:"month"`
}

// QuotaCandidateRow is a user joined with one of their period rows.
type QuotaCandidateRow struct {
	UserID          string         `json:"user_id"`
	Email           string         `json:"email"`
	FirstName       sql.NullString `json:"first_name"`
	Plan            string         `json:"plan"`
	SubmissionCount int32          `json:"submission_count"`
	FormCount       int32          `json:"form_count"`
	CampaignCount   int32          `json:"campaign_count"`
}

const listResetCandidates = `-- name: ListResetCandidates :many
SELECT u.id, u.email, u.first_name, u.plan,
       q.submission_count, q.form_count, q.campaign_count
FROM users u
JOIN quotas q ON q.user_id = u.id
WHERE q.year = $1 AND q.month = $2
ORDER BY u.created_at DESC
`

// ListResetCandidates returns every user with a row for the given period.
func (q *Queries) ListResetCandidates(ctx context.Context, arg PeriodParams) ([]QuotaCandidateRow, error) {
	return q.listQuotaCandidates(ctx, listResetCandidates, arg)
}

const listWarningCandidates = `-- name: ListWarningCandidates :many
SELECT u.id, u.email, u.first_name, u.plan,
       q.submission_count, q.form_count, q.campaign_count
FROM users u
JOIN quotas q ON q.user_id = u.id
WHERE q.year = $1 AND q.month = $2 AND q.submission_count > 0
ORDER BY q.submission_count DESC
`

// ListWarningCandidates returns users with submissions in the given period.
func (q *Queries) ListWarningCandidates(ctx context.Context, arg PeriodParams) ([]QuotaCandidateRow, error) {
	return q.listQuotaCandidates(ctx, listWarningCandidates, arg)
}

func (q *Queries) listQuotaCandidates(ctx context.Context, query string, arg PeriodParams) ([]QuotaCandidateRow, error) {
	rows, err := q.db.QueryContext(ctx, query, arg.Year, arg.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuotaCandidateRow
	for rows.Next() {
		var i QuotaCandidateRow
		if err := rows.Scan(
			&i.UserID,
			&i.Email,
			&i.FirstName,
			&i.Plan,
			&i.SubmissionCount,
			&i.FormCount,
			&i.CampaignCount,
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
