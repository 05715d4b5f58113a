package grants

import (
	"context"

	"github.com/dmitrijs2005/palette/internal/server/models"
)

type Repository interface {
	// Insert records a grant for g.PaymentID and reports false when that
	// payment was already granted.
	Insert(ctx context.Context, g *models.CreditGrant) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.CreditGrant, error)
}
