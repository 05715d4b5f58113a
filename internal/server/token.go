package server

import (
	"errors"

	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/config"
)

var errNoTokenSecret = errors.New("jwt secret is not configured")

// IssueToken mints an HS256 access token valid for c.AccessTokenTTL. It is
// meant for deployments without an identity provider and for local
// development; the server accepts the token only while the same secret is
// configured.
func IssueToken(c *config.Config, userID, email string) (string, error) {
	if c.JWTSecret == "" {
		return "", errNoTokenSecret
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	return auth.GenerateToken(auth.Identity{UserID: userID, Email: email}, []byte(c.JWTSecret), c.AccessTokenTTL)
}
