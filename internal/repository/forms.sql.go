package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const formColumns = `id, user_id, name, description, form_type, settings, created_at, updated_at`

func scanForm(row interface{ Scan(...interface{}) error }) (Form, error) {
	var i Form
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Description,
		&i.FormType,
		&i.Settings,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createForm = `-- name: CreateForm :one
INSERT INTO forms (id, user_id, name, description, form_type, settings)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + formColumns + `
`

type CreateFormParams struct {
	ID          uuid.UUID             `json:"id"`
	UserID      string                `json:"user_id"`
	Name        string                `json:"name"`
	Description sql.NullString        `json:"description"`
	FormType    string                `json:"form_type"`
	Settings    pqtype.NullRawMessage `json:"settings"`
}

func (q *Queries) CreateForm(ctx context.Context, arg CreateFormParams) (Form, error) {
	return scanForm(q.db.QueryRowContext(ctx, createForm,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Description,
		arg.FormType,
		arg.Settings,
	))
}

const getForm = `-- name: GetForm :one
SELECT ` + formColumns + ` FROM forms WHERE id = $1
`

func (q *Queries) GetForm(ctx context.Context, id uuid.UUID) (Form, error) {
	return scanForm(q.db.QueryRowContext(ctx, getForm, id))
}

const getFormByIDAndUser = `-- name: GetFormByIDAndUser :one
SELECT ` + formColumns + ` FROM forms WHERE id = $1 AND user_id = $2
`

type GetFormByIDAndUserParams struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
}

func (q *Queries) GetFormByIDAndUser(ctx context.Context, arg GetFormByIDAndUserParams) (Form, error) {
	return scanForm(q.db.QueryRowContext(ctx, getFormByIDAndUser, arg.ID, arg.UserID))
}

const listFormsByUser = `-- name: ListFormsByUser :many
SELECT f.id, f.user_id, f.name, f.description, f.form_type, f.settings, f.created_at, f.updated_at,
       (SELECT COUNT(*) FROM submissions s WHERE s.form_id = f.id) AS submission_count
FROM forms f
WHERE f.user_id = $1
ORDER BY f.created_at DESC
`

type ListFormsByUserRow struct {
	Form
	SubmissionCount int64 `json:"submission_count"`
}

func (q *Queries) ListFormsByUser(ctx context.Context, userID string) ([]ListFormsByUserRow, error) {
	rows, err := q.db.QueryContext(ctx, listFormsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListFormsByUserRow
	for rows.Next() {
		var i ListFormsByUserRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Name,
			&i.Description,
			&i.FormType,
			&i.Settings,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.SubmissionCount,
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

const listFormIDsByUser = `-- name: ListFormIDsByUser :many
SELECT id FROM forms WHERE user_id = $1
`

func (q *Queries) ListFormIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listFormIDsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteFormByIDAndUser = `-- name: DeleteFormByIDAndUser :execrows
DELETE FROM forms WHERE id = $1 AND user_id = $2
`

func (q *Queries) DeleteFormByIDAndUser(ctx context.Context, arg GetFormByIDAndUserParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteFormByIDAndUser, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteFormsByUser = `-- name: DeleteFormsByUser :exec
DELETE FROM forms WHERE user_id = $1
`

func (q *Queries) DeleteFormsByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteFormsByUser, userID)
	return err
}

// =============================================================================
// Email settings
// =============================================================================

const createEmailSettings = `-- name: CreateEmailSettings :one
INSERT INTO email_settings (id, form_id, confirmation_enabled, developer_email, from_email)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, form_id, confirmation_enabled, developer_email, from_email, created_at
`

type CreateEmailSettingsParams struct {
	ID                  uuid.UUID      `json:"id"`
	FormID              uuid.UUID      `json:"form_id"`
	ConfirmationEnabled bool           `json:"confirmation_enabled"`
	DeveloperEmail      sql.NullString `json:"developer_email"`
	FromEmail           sql.NullString `json:"from_email"`
}

func (q *Queries) CreateEmailSettings(ctx context.Context, arg CreateEmailSettingsParams) (EmailSetting, error) {
	row := q.db.QueryRowContext(ctx, createEmailSettings,
		arg.ID,
		arg.FormID,
		arg.ConfirmationEnabled,
		arg.DeveloperEmail,
		arg.FromEmail,
	)
	var i EmailSetting
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.ConfirmationEnabled,
		&i.DeveloperEmail,
		&i.FromEmail,
		&i.CreatedAt,
	)
	return i, err
}

const getEmailSettingsByForm = `-- name: GetEmailSettingsByForm :one
SELECT id, form_id, confirmation_enabled, developer_email, from_email, created_at
FROM email_settings WHERE form_id = $1
`

func (q *Queries) GetEmailSettingsByForm(ctx context.Context, formID uuid.UUID) (EmailSetting, error) {
	row := q.db.QueryRowContext(ctx, getEmailSettingsByForm, formID)
	var i EmailSetting
	err := row.Scan(
		&i.ID,
		&i.FormID,
		&i.ConfirmationEnabled,
		&i.DeveloperEmail,
		&i.FromEmail,
		&i.CreatedAt,
	)
	return i, err
}

const deleteEmailSettingsByFormIDs = `-- name: DeleteEmailSettingsByFormIDs :exec
DELETE FROM email_settings WHERE form_id = ANY($1::uuid[])
`

func (q *Queries) DeleteEmailSettingsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteEmailSettingsByFormIDs, pq.Array(formIDs))
	return err
}
