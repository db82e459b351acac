package repository

import (
	"context"
	"database/sql"
)

const userColumns = `id, email, first_name, last_name, plan, quota_limit, stripe_customer_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.Plan,
		&i.QuotaLimit,
		&i.StripeCustomerID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const getUserByStripeCustomerID = `-- name: GetUserByStripeCustomerID :one
SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1
`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, stripeCustomerID))
}

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (id, email, first_name, last_name, plan, quota_limit)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    first_name = COALESCE(EXCLUDED.first_name, users.first_name),
    last_name = COALESCE(EXCLUDED.last_name, users.last_name),
    updated_at = NOW()
RETURNING ` + userColumns + `
`

type UpsertUserParams struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	FirstName  sql.NullString `json:"first_name"`
	LastName   sql.NullString `json:"last_name"`
	Plan       string         `json:"plan"`
	QuotaLimit int32          `json:"quota_limit"`
}

// UpsertUser creates the user or refreshes identity fields. Plan and quota
// limit are only written on insert.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, upsertUser,
		arg.ID,
		arg.Email,
		arg.FirstName,
		arg.LastName,
		arg.Plan,
		arg.QuotaLimit,
	))
}

const updateUserPlan = `-- name: UpdateUserPlan :exec
UPDATE users SET plan = $2, quota_limit = $3, updated_at = NOW() WHERE id = $1
`

type UpdateUserPlanParams struct {
	ID         string `json:"id"`
	Plan       string `json:"plan"`
	QuotaLimit int32  `json:"quota_limit"`
}

func (q *Queries) UpdateUserPlan(ctx context.Context, arg UpdateUserPlanParams) error {
	_, err := q.db.ExecContext(ctx, updateUserPlan, arg.ID, arg.Plan, arg.QuotaLimit)
	return err
}

const updateUserStripeCustomer = `-- name: UpdateUserStripeCustomer :exec
UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1
`

type UpdateUserStripeCustomerParams struct {
	ID               string         `json:"id"`
	StripeCustomerID sql.NullString `json:"stripe_customer_id"`
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}
