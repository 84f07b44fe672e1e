package postgres

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrStaleRow is returned when an optimistic updated_at check fails.
var ErrStaleRow = errors.New("row was modified by another transaction")

// ErrNoRows mirrors sql.ErrNoRows at the repository boundary.
var ErrNoRows = errors.New("no rows found")

// withTx executes fn inside a transaction, rolling back on error or panic.
func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
