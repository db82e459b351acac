package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createAPIKey = `-- name: CreateAPIKey :one
INSERT INTO api_keys (id, user_id, name, prefix, key_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, name, prefix, key_hash, last_used_at, created_at
`

type CreateAPIKeyParams struct {
	ID      uuid.UUID `json:"id"`
	UserID  string    `json:"user_id"`
	Name    string    `json:"name"`
	Prefix  string    `json:"prefix"`
	KeyHash string    `json:"key_hash"`
}

func (q *Queries) CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) (ApiKey, error) {
	row := q.db.QueryRowContext(ctx, createAPIKey,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Prefix,
		arg.KeyHash,
	)
	var i ApiKey
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Prefix,
		&i.KeyHash,
		&i.LastUsedAt,
		&i.CreatedAt,
	)
	return i, err
}

const listAPIKeysByPrefix = `-- name: ListAPIKeysByPrefix :many
SELECT id, user_id, name, prefix, key_hash, last_used_at, created_at
FROM api_keys WHERE prefix = $1
`

func (q *Queries) ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]ApiKey, error) {
	rows, err := q.db.QueryContext(ctx, listAPIKeysByPrefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ApiKey
	for rows.Next() {
		var i ApiKey
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Name,
			&i.Prefix,
			&i.KeyHash,
			&i.LastUsedAt,
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

const touchAPIKey = `-- name: TouchAPIKey :exec
UPDATE api_keys SET last_used_at = $2 WHERE id = $1
`

type TouchAPIKeyParams struct {
	ID         uuid.UUID `json:"id"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func (q *Queries) TouchAPIKey(ctx context.Context, arg TouchAPIKeyParams) error {
	_, err := q.db.ExecContext(ctx, touchAPIKey, arg.ID, arg.LastUsedAt)
	return err
}

const deleteAPIKeysByUser = `-- name: DeleteAPIKeysByUser :exec
DELETE FROM api_keys WHERE user_id = $1
`

func (q *Queries) DeleteAPIKeysByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteAPIKeysByUser, userID)
	return err
}
