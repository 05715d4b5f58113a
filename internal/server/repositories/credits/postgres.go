// Package credits stores purchased generation credits. A balance row is
// created on first grant and can never go below zero.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/palette/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Balance(ctx context.Context, userID string) (int64, error) {
	query := `SELECT balance FROM credit_balances WHERE user_id = $1`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return balance, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, userID string) (bool, error) {
	query :=
		`UPDATE credit_balances
		 SET balance = balance - 1, updated_at = now()
		 WHERE user_id = $1 AND balance > 0`

	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	query :=
		`INSERT INTO credit_balances (user_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()
		 RETURNING balance`

	var balance int64
	if err := r.db.QueryRowContext(ctx, query, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return balance, nil
}
