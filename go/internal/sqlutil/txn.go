package sqlutil

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
)

// Run executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(newQueries(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Beginner starts pgx transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunPgx is Run for pgx: fn gets queries bound to a pgx.Tx, the tx rolls
// back when fn fails and commits otherwise.
func RunPgx[T any](
	ctx context.Context,
	db Beginner,
	newQueries func(pgx.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(newQueries(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
