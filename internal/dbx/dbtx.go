// Package dbx holds the small database helpers shared by repositories:
// the DBTX interface satisfied by *sql.DB and *sql.Tx, transaction scoping
// and classification of retryable store failures.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is the subset of database/sql used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic; panics are rethrown after the rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE credit_balances ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return Classify(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = Classify(tx.Commit())
	}()

	err = fn(ctx, tx)
	return err
}

// SetLockTimeout bounds how long statements in the current Postgres
// transaction wait for row locks. A zero or negative d leaves the server
// default untouched.
func SetLockTimeout(ctx context.Context, tx DBTX, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	// SET does not accept bind parameters.
	q := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return Classify(err)
	}
	return nil
}
