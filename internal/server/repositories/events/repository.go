package events

import (
	"context"

	"github.com/dmitrijs2005/palette/internal/server/models"
)

type Repository interface {
	// Record inserts ev unless an event with the same id exists and reports
	// whether the row was new.
	Record(ctx context.Context, ev *models.BillingEvent) (bool, error)
	GetForUpdate(ctx context.Context, id string) (*models.BillingEvent, error)
	UpdateStatus(ctx context.Context, id, status, lastError string) error
	RecordAttempt(ctx context.Context, id, lastError string) error
	ListUnresolved(ctx context.Context, limit int) ([]*models.BillingEvent, error)
}
