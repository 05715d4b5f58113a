package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/palette/internal/client/models"
	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/dbx"
)

// timeLayout has a fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.HistoryEntry) error {
	colors, err := json.Marshal(e.Colors)
	if err != nil {
		return fmt.Errorf("failed to encode colors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO history (id, colors, harmony, source, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			colors = excluded.colors,
			harmony = excluded.harmony,
			source = excluded.source,
			created_at = excluded.created_at
	`, e.ID, string(colors), e.Harmony, e.Source, e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to upsert history[%s]: %w", e.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, colors, harmony, source, created_at FROM history WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history[%s]: %w", id, err)
	}
	return e, nil
}

// List returns the newest entries first. A non-positive limit means all.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, colors, harmony, source, created_at FROM history
		ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var result []*models.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.HistoryEntry, error) {
	var (
		e         models.HistoryEntry
		colors    string
		createdAt string
	)
	if err := s.Scan(&e.ID, &colors, &e.Harmony, &e.Source, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(colors), &e.Colors); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = t
	return &e, nil
}
