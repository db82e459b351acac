package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is a Querier that can also run a function inside a transaction.
type Store interface {
	Querier

	// ExecTx runs fn in a transaction, committing if fn returns nil and
	// rolling back otherwise.
	ExecTx(ctx context.Context, fn func(Querier) error) error
}

// SQLStore implements Store on a *sql.DB.
type SQLStore struct {
	*Queries
	db *sql.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// ExecTx runs fn in a transaction.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
