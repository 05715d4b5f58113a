package generations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/palette/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.Generation) (*models.Generation, error)
	// CountSince counts the user's generations created at or after since.
	// The zero time counts the whole lifetime.
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Generation, error)
	Get(ctx context.Context, userID, id string) (*models.Generation, error)
}
