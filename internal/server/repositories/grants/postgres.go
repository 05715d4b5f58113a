// Package grants is the credit ledger. One row per payment id makes every
// credit purchase count at most once.
package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, g *models.CreditGrant) (bool, error) {
	query :=
		`INSERT INTO credit_grants (payment_id, event_id, user_id, price_id, amount)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (payment_id) DO NOTHING
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, g.PaymentID, g.EventID, g.UserID, g.PriceID, g.Amount).Scan(&g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return true, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.CreditGrant, error) {
	query :=
		`SELECT payment_id, event_id, user_id, price_id, amount, created_at FROM credit_grants
		 WHERE user_id = $1
		 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	var out []*models.CreditGrant
	for rows.Next() {
		g := &models.CreditGrant{}
		if err := rows.Scan(&g.PaymentID, &g.EventID, &g.UserID, &g.PriceID, &g.Amount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
