package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tableside/api/internal/database"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Unique constraints the services recover from.
const (
	constraintOneOpenSession = "table_sessions_one_open_per_table"
	constraintOrderSession   = "orders_session_id_key"
)

// isUniqueViolation checks for pgconn error code 23505 on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// readTx runs fn against a store bound to a fresh transaction and commits.
// Used for the read paths so hydrated views come from one snapshot.
func readTx[S any](ctx context.Context, pool TxBeginner, newStore func(db database.DBTX) S, fn func(S) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(newStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
