// Package generations persists palette generations. Rows are append-only.
package generations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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

// Create inserts g, assigning an id when it has none.
func (r *PostgresRepository) Create(ctx context.Context, g *models.Generation) (*models.Generation, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	colors, err := json.Marshal(g.Colors)
	if err != nil {
		return nil, fmt.Errorf("encode colors: %w", err)
	}

	query :=
		`INSERT INTO generations (id, user_id, colors, harmony, source)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query, g.ID, g.UserID, colors, g.Harmony, g.Source).Scan(&g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return g, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM generations
		 WHERE user_id = $1 AND created_at >= $2`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Generation, error) {
	query :=
		`SELECT id, user_id, colors, harmony, source, created_at FROM generations
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	var out []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Generation, error) {
	query :=
		`SELECT id, user_id, colors, harmony, source, created_at FROM generations
		 WHERE user_id = $1 AND id = $2`

	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return g, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (*models.Generation, error) {
	g := &models.Generation{}
	var colors []byte
	if err := s.Scan(&g.ID, &g.UserID, &colors, &g.Harmony, &g.Source, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(colors, &g.Colors); err != nil {
		return nil, fmt.Errorf("decode colors: %w", err)
	}
	return g, nil
}
