package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const submissionColumns = `id, form_id, data, email, unsubscribed, ip_address, created_at`

func scanSubmission(row interface{ Scan(...interface{}) error }) (Submission, error) {
	var i Submission
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.Data,
		&i.Email,
		&i.Unsubscribed,
		&i.IpAddress,
		&i.CreatedAt,
	)
	return i, err
}

func (q *Queries) querySubmissions(ctx context.Context, query string, args ...interface{}) ([]Submission, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Submission
	for rows.Next() {
		i, err := scanSubmission(rows)
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

const createSubmission = `-- name: CreateSubmission :one
INSERT INTO submissions (id, form_id, data, email, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + submissionColumns + `
`

type CreateSubmissionParams struct {
	ID        uuid.UUID       `json:"id"`
	FormID    uuid.UUID       `json:"form_id"`
	Data      json.RawMessage `json:"data"`
	Email     sql.NullString  `json:"email"`
	IpAddress sql.NullString  `json:"ip_address"`
	CreatedAt time.Time       `json:"created_at"`
}

func (q *Queries) CreateSubmission(ctx context.Context, arg CreateSubmissionParams) (Submission, error) {
	return scanSubmission(q.db.QueryRowContext(ctx, createSubmission,
		arg.ID,
		arg.FormID,
		arg.Data,
		arg.Email,
		arg.IpAddress,
		arg.CreatedAt,
	))
}

const getSubmission = `-- name: GetSubmission :one
SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1
`

func (q *Queries) GetSubmission(ctx context.Context, id uuid.UUID) (Submission, error) {
	return scanSubmission(q.db.QueryRowContext(ctx, getSubmission, id))
}

const listSubmissionsByForm = `-- name: ListSubmissionsByForm :many
SELECT ` + submissionColumns + ` FROM submissions
WHERE form_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

type ListSubmissionsByFormParams struct {
	FormID uuid.UUID    `json:"form_id"`
	Since  sql.NullTime `json:"since"`
	Until  sql.NullTime `json:"until"`
	Limit  int32        `json:"limit"`
	Offset int32        `json:"offset"`
}

func (q *Queries) ListSubmissionsByForm(ctx context.Context, arg ListSubmissionsByFormParams) ([]Submission, error) {
	return q.querySubmissions(ctx, listSubmissionsByForm,
		arg.FormID,
		arg.Since,
		arg.Until,
		arg.Limit,
		arg.Offset,
	)
}

const countSubmissionsByForm = `-- name: CountSubmissionsByForm :one
SELECT COUNT(*) FROM submissions
WHERE form_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
`

type CountSubmissionsByFormParams struct {
	FormID uuid.UUID    `json:"form_id"`
	Since  sql.NullTime `json:"since"`
	Until  sql.NullTime `json:"until"`
}

func (q *Queries) CountSubmissionsByForm(ctx context.Context, arg CountSubmissionsByFormParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSubmissionsByForm, arg.FormID, arg.Since, arg.Until)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listAllSubmissionsByForm = `-- name: ListAllSubmissionsByForm :many
SELECT ` + submissionColumns + ` FROM submissions
WHERE form_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListAllSubmissionsByForm(ctx context.Context, formID uuid.UUID) ([]Submission, error) {
	return q.querySubmissions(ctx, listAllSubmissionsByForm, formID)
}

const listRecipientCandidates = `-- name: ListRecipientCandidates :many
SELECT ` + submissionColumns + ` FROM submissions
WHERE form_id = $1 AND email IS NOT NULL AND email <> '' AND unsubscribed = FALSE
ORDER BY created_at DESC
LIMIT $2
`

type ListRecipientCandidatesParams struct {
	FormID uuid.UUID `json:"form_id"`
	Limit  int32     `json:"limit"`
}

// ListRecipientCandidates returns the form's most recent reachable submissions.
func (q *Queries) ListRecipientCandidates(ctx context.Context, arg ListRecipientCandidatesParams) ([]Submission, error) {
	return q.querySubmissions(ctx, listRecipientCandidates, arg.FormID, arg.Limit)
}

const markSubmissionUnsubscribed = `-- name: MarkSubmissionUnsubscribed :exec
UPDATE submissions SET unsubscribed = TRUE WHERE id = $1
`

func (q *Queries) MarkSubmissionUnsubscribed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markSubmissionUnsubscribed, id)
	return err
}

const listSubmissionsByFormIDs = `-- name: ListSubmissionsByFormIDs :many
SELECT ` + submissionColumns + ` FROM submissions
WHERE form_id = ANY($1::uuid[])
ORDER BY form_id, created_at
`

func (q *Queries) ListSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) ([]Submission, error) {
	return q.querySubmissions(ctx, listSubmissionsByFormIDs, pq.Array(formIDs))
}

const deleteSubmissionsByFormIDs = `-- name: DeleteSubmissionsByFormIDs :exec
DELETE FROM submissions WHERE form_id = ANY($1::uuid[])
`

func (q *Queries) DeleteSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteSubmissionsByFormIDs, pq.Array(formIDs))
	return err
}

// =============================================================================
// Notification logs
// =============================================================================

const createNotificationLog = `-- name: CreateNotificationLog :one
INSERT INTO notification_logs (id, form_id, submission_id, type, status, error)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, form_id, submission_id, type, status, error, created_at
`

type CreateNotificationLogParams struct {
	ID           uuid.UUID      `json:"id"`
	FormID       uuid.UUID      `json:"form_id"`
	SubmissionID uuid.NullUUID  `json:"submission_id"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Error        sql.NullString `json:"error"`
}

func (q *Queries) CreateNotificationLog(ctx context.Context, arg CreateNotificationLogParams) (NotificationLog, error) {
	row := q.db.QueryRowContext(ctx, createNotificationLog,
		arg.ID,
		arg.FormID,
		arg.SubmissionID,
		arg.Type,
		arg.Status,
		arg.Error,
	)
	var i NotificationLog
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.SubmissionID,
		&i.Type,
		&i.Status,
		&i.Error,
		&i.CreatedAt,
	)
	return i, err
}

const listNotificationLogsByForm = `-- name: ListNotificationLogsByForm :many
SELECT id, form_id, submission_id, type, status, error, created_at
FROM notification_logs
WHERE form_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListNotificationLogsByFormParams struct {
	FormID uuid.UUID `json:"form_id"`
	Limit  int32     `json:"limit"`
	Offset int32     `json:"offset"`
}

func (q *Queries) ListNotificationLogsByForm(ctx context.Context, arg ListNotificationLogsByFormParams) ([]NotificationLog, error) {
	rows, err := q.db.QueryContext(ctx, listNotificationLogsByForm, arg.FormID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NotificationLog
	for rows.Next() {
		var i NotificationLog
		if err := rows.Scan(
			&i.ID,
			&i.FormID,
			&i.SubmissionID,
			&i.Type,
			&i.Status,
			&i.Error,
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

const deleteNotificationLogsByFormIDs = `-- name: DeleteNotificationLogsByFormIDs :exec
DELETE FROM notification_logs WHERE form_id = ANY($1::uuid[])
`

func (q *Queries) DeleteNotificationLogsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteNotificationLogsByFormIDs, pq.Array(formIDs))
	return err
}
