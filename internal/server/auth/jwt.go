// Package auth resolves the caller's identity from bearer tokens. Tokens are
// either HS256 tokens minted by this server or RS256 tokens issued by an
// external OIDC provider and checked against its JWKS.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/palette/internal/common"
)

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	UserID string
	Email  string
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims carries the registered claims plus the caller's email.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// GenerateToken signs an HS256 token whose subject is the user id.
func GenerateToken(id Identity, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Email: id.Email,
	})
	return token.SignedString(secretKey)
}

// HMACVerifier accepts tokens produced by GenerateToken.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
	}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, tokenError(err)
	}
	return identityFromClaims(claims.Subject, claims.Email)
}

func identityFromClaims(sub, email string) (Identity, error) {
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", common.ErrInvalidToken)
	}
	return Identity{UserID: sub, Email: email}, nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return common.ErrTokenExpired
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
}
