// Package services contains the server's business logic: user records,
// entitlement-gated generation and palette export.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/models"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
)

// UserService keeps local user rows in step with the identity provider.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

// Ensure creates or refreshes the user named by id. The identity is trusted
// as asserted by the provider.
func (s *UserService) Ensure(ctx context.Context, id auth.Identity) (*models.User, error) {
	if id.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	u, err := s.repomanager.Users(s.db).Upsert(ctx, id.UserID, id.Email)
	if err != nil {
		return nil, fmt.Errorf("error upserting user: %w", err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}
