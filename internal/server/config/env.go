package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseEnv overlays variables that are set. Price maps use the
// "price_id:amount,price_id:amount" form.
func parseEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var err error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = d
		}
	}
	prices := func(key string, dst *map[string]int64) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			m, perr := parsePriceMap(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = m
		}
	}

	str("PALETTE_HTTP_ADDR", &c.HTTPAddr)
	str("PALETTE_GRPC_ADDR", &c.GRPCAddr)
	str("DATABASE_URL", &c.DatabaseDSN)
	str("PALETTE_LOG_LEVEL", &c.LogLevel)
	str("PALETTE_JWT_SECRET", &c.JWTSecret)
	dur("PALETTE_ACCESS_TOKEN_TTL", &c.AccessTokenTTL)
	str("OIDC_ISSUER", &c.OIDCIssuer)
	str("OIDC_AUDIENCE", &c.OIDCAudience)
	str("OIDC_JWKS_URL", &c.OIDCJWKSURL)
	str("STRIPE_SECRET_KEY", &c.StripeSecretKey)
	str("STRIPE_WEBHOOK_SECRET", &c.StripeWebhookSecret)
	prices("PALETTE_PLANS", &c.Plans)
	prices("PALETTE_CREDIT_PACKS", &c.CreditPacks)
	str("STRIPE_PRICE_PRO", &c.ProPriceID)
	str("STRIPE_PRICE_CREDITS", &c.CreditsPriceID)
	str("FRONTEND_URL", &c.FrontendURL)
	dur("PALETTE_LOCK_TIMEOUT", &c.LockTimeout)
	dur("PALETTE_GENERATE_BACKOFF", &c.GenerateBackoff)
	dur("PALETTE_RECONCILE_INTERVAL", &c.ReconcileInterval)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_ENDPOINT", &c.S3BaseEndpoint)
	dur("PALETTE_EXPORT_URL_TTL", &c.ExportURLTTL)
	if err != nil {
		return err
	}

	if v, ok := lookup("PALETTE_GENERATE_ATTEMPTS"); ok && v != "" {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return fmt.Errorf("PALETTE_GENERATE_ATTEMPTS: %w", perr)
		}
		c.GenerateAttempts = n
	}
	if v, ok := lookup("PALETTE_FREE_ALLOWANCE"); ok && v != "" {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return fmt.Errorf("PALETTE_FREE_ALLOWANCE: %w", perr)
		}
		c.FreeAllowance = n
	}
	return nil
}

func parsePriceMap(s string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, amount, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		out[strings.TrimSpace(id)] = n
	}
	return out, nil
}

func formatPriceMap(m map[string]int64) string {
	parts := make([]string, 0, len(m))
	for id, n := range m {
		parts = append(parts, id+":"+strconv.FormatInt(n, 10))
	}
	return strings.Join(parts, ",")
}
