package stripemirror

import (
	"context"

	"github.com/dmitrijs2005/palette/internal/server/models"
)

// Repository reads the customer and subscription tables maintained by the
// payment sync engine. It never writes.
type Repository interface {
	UserIDForCustomer(ctx context.Context, customerID string) (string, error)
	CustomerForUser(ctx context.Context, userID string) (*models.BillingCustomer, error)
	SubscriptionForUser(ctx context.Context, userID string) (*models.Subscription, error)
}
