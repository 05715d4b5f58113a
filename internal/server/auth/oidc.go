package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/palette/internal/common"
)

const defaultLeeway = 30 * time.Second

// JWKSVerifier validates provider-issued access tokens.
type JWKSVerifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewJWKSVerifier fetches keys from jwksURL, defaulting to the issuer's
// well-known location.
func NewJWKSVerifier(issuer, audience, jwksURL string) (*JWKSVerifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}

	provider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init jwks keyfunc: %w", err)
	}
	return newJWKSVerifier(issuer, audience, provider.Keyfunc), nil
}

func newJWKSVerifier(issuer, audience string, kf jwt.Keyfunc) *JWKSVerifier {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWKSVerifier{keyfunc: kf, parser: jwt.NewParser(opts...)}
}

func (v *JWKSVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc); err != nil {
		return Identity{}, tokenError(err)
	}
	return identityFromClaims(claims.Subject, claims.Email)
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

// Chain tries each verifier in order and returns the first success. When all
// fail, the first error is reported, except that an expiry wins so the
// caller can refresh.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	var first error
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, common.ErrTokenExpired) {
			return Identity{}, err
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = common.ErrorUnauthorized
	}
	return Identity{}, first
}
