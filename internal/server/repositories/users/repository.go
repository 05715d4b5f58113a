package users

import (
	"context"

	"github.com/dmitrijs2005/palette/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, id, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// LockForUpdate takes the row lock that serializes a user's generation
	// writes until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, id string) error
}
