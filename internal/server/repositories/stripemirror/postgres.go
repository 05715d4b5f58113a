// Package stripemirror queries the stripe schema populated by the payment
// sync engine. Customers carry the local user id in metadata.user_id.
package stripemirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UserIDForCustomer(ctx context.Context, customerID string) (string, error) {
	query :=
		`SELECT metadata->>'user_id' FROM stripe.customers
		 WHERE id = $1 AND NOT deleted`

	var userID sql.NullString
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && userID.String == "") {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return userID.String, nil
}

func (r *PostgresRepository) CustomerForUser(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	query :=
		`SELECT id, COALESCE(email, '') FROM stripe.customers
		 WHERE metadata->>'user_id' = $1 AND NOT deleted
		 ORDER BY id
		 LIMIT 1`

	c := &models.BillingCustomer{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.CustomerID, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return c, nil
}

// SubscriptionForUser picks the user's most relevant subscription: entitling
// statuses first, then the newest.
func (r *PostgresRepository) SubscriptionForUser(ctx context.Context, userID string) (*models.Subscription, error) {
	query :=
		`SELECT s.id, s.customer, s.status,
		        COALESCE(s.items->'data'->0->'price'->>'id', ''), s.created
		 FROM stripe.subscriptions s
		 JOIN stripe.customers c ON c.id = s.customer
		 WHERE c.metadata->>'user_id' = $1 AND NOT c.deleted
		 ORDER BY CASE WHEN s.status IN ('active', 'trialing', 'past_due', 'unpaid') THEN 0 ELSE 1 END,
		          s.created DESC
		 LIMIT 1`

	s := &models.Subscription{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.ID, &s.CustomerID, &s.Status, &s.PriceID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	s.Created = time.Unix(created, 0).UTC()
	return s, nil
}
