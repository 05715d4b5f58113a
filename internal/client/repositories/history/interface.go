// Package history stores the palettes the CLI has seen in a local sqlite
// database, so `history` still works while the server is unreachable.
package history

import (
	"context"

	"github.com/dmitrijs2005/palette/internal/client/models"
)

type Repository interface {
	Upsert(ctx context.Context, e *models.HistoryEntry) error
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
	List(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
	Clear(ctx context.Context) error
}
