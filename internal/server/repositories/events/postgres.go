// Package events is the processed-event log of billing webhooks, keyed by
// the processor's event id.
package events

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

const eventColumns = `id, type, status, customer_id, payload, attempts, last_error, created_at, updated_at`

func (r *PostgresRepository) Record(ctx context.Context, ev *models.BillingEvent) (bool, error) {
	query :=
		`INSERT INTO billing_events (id, type, status, customer_id, payload, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		ev.ID, ev.Type, ev.Status, ev.CustomerID, ev.Payload, ev.LastError).Scan(&ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return true, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.BillingEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM billing_events WHERE id = $1 FOR UPDATE`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return ev, err
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status, lastError string) error {
	query :=
		`UPDATE billing_events
		 SET status = $2, last_error = $3, attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status, lastError)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// RecordAttempt notes a failed retry of an unresolved event. The status is
// kept and updated_at moves the event to the back of the retry queue.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, id, lastError string) error {
	query :=
		`UPDATE billing_events
		 SET last_error = $2, attempts = attempts + 1, updated_at = now()
		 WHERE id = $1 AND status = $3`

	if _, err := r.db.ExecContext(ctx, query, id, lastError, models.EventUnresolved); err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}

// ListUnresolved returns the oldest events still waiting for a customer
// mapping.
func (r *PostgresRepository) ListUnresolved(ctx context.Context, limit int) ([]*models.BillingEvent, error) {
	query :=
		`SELECT ` + eventColumns + ` FROM billing_events
		 WHERE status = $1
		 ORDER BY updated_at
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, models.EventUnresolved, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	var out []*models.BillingEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*models.BillingEvent, error) {
	ev := &models.BillingEvent{}
	err := s.Scan(&ev.ID, &ev.Type, &ev.Status, &ev.CustomerID, &ev.Payload,
		&ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return ev, nil
}
