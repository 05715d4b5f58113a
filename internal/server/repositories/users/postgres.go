// Package users stores local user records keyed by the identity provider's
// subject.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

// Upsert creates the user or refreshes the email when it changed.
func (r *PostgresRepository) Upsert(ctx context.Context, id, email string) (*models.User, error) {
	query :=
		`INSERT INTO users (id, email)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET email = CASE WHEN EXCLUDED.email = '' THEN users.email ELSE EXCLUDED.email END,
		     updated_at = now()
		 RETURNING id, email, created_at, updated_at`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id, email).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, created_at, updated_at FROM users
		 WHERE id = $1`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return u, nil
}

func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) error {
	query := `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	var got string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}
