package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/dmitrijs2005/palette/internal/flagx"
	"github.com/dmitrijs2005/palette/internal/timex"
)

// JSONConfig is the on-disk shape of the config file. Comments and trailing
// commas are allowed; durations are strings such as "5s".
type JSONConfig struct {
	HTTPAddr            string           `json:"http_addr"`
	GRPCAddr            string           `json:"grpc_addr"`
	DatabaseDSN         string           `json:"database_dsn"`
	LogLevel            string           `json:"log_level"`
	JWTSecret           string           `json:"jwt_secret"`
	AccessTokenTTL      timex.Duration   `json:"access_token_ttl"`
	OIDCIssuer          string           `json:"oidc_issuer"`
	OIDCAudience        string           `json:"oidc_audience"`
	OIDCJWKSURL         string           `json:"oidc_jwks_url"`
	StripeSecretKey     string           `json:"stripe_secret_key"`
	StripeWebhookSecret string           `json:"stripe_webhook_secret"`
	Plans               map[string]int64 `json:"plans"`
	CreditPacks         map[string]int64 `json:"credit_packs"`
	ProPriceID          string           `json:"pro_price_id"`
	CreditsPriceID      string           `json:"credits_price_id"`
	FrontendURL         string           `json:"frontend_url"`
	FreeAllowance       *int64           `json:"free_allowance"`
	LockTimeout         timex.Duration   `json:"lock_timeout"`
	GenerateAttempts    uint64           `json:"generate_attempts"`
	GenerateBackoff     timex.Duration   `json:"generate_backoff"`
	ReconcileInterval   timex.Duration   `json:"reconcile_interval"`
	S3AccessKey         string           `json:"s3_access_key"`
	S3SecretKey         string           `json:"s3_secret_key"`
	S3Bucket            string           `json:"s3_bucket"`
	S3Region            string           `json:"s3_region"`
	S3BaseEndpoint      string           `json:"s3_base_endpoint"`
	ExportURLTTL        timex.Duration   `json:"export_url_ttl"`
}

// parseJSON overlays the file named by -c/-config, if any. Only keys present
// with non-zero values override what is already in c.
func parseJSON(c *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(jsonc.ToJSON(raw), &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setStr(&c.HTTPAddr, jc.HTTPAddr)
	setStr(&c.GRPCAddr, jc.GRPCAddr)
	setStr(&c.DatabaseDSN, jc.DatabaseDSN)
	setStr(&c.LogLevel, jc.LogLevel)
	setStr(&c.JWTSecret, jc.JWTSecret)
	setDur(&c.AccessTokenTTL, jc.AccessTokenTTL)
	setStr(&c.OIDCIssuer, jc.OIDCIssuer)
	setStr(&c.OIDCAudience, jc.OIDCAudience)
	setStr(&c.OIDCJWKSURL, jc.OIDCJWKSURL)
	setStr(&c.StripeSecretKey, jc.StripeSecretKey)
	setStr(&c.StripeWebhookSecret, jc.StripeWebhookSecret)
	if jc.Plans != nil {
		c.Plans = jc.Plans
	}
	if jc.CreditPacks != nil {
		c.CreditPacks = jc.CreditPacks
	}
	setStr(&c.ProPriceID, jc.ProPriceID)
	setStr(&c.CreditsPriceID, jc.CreditsPriceID)
	setStr(&c.FrontendURL, jc.FrontendURL)
	if jc.FreeAllowance != nil {
		c.FreeAllowance = *jc.FreeAllowance
	}
	setDur(&c.LockTimeout, jc.LockTimeout)
	if jc.GenerateAttempts != 0 {
		c.GenerateAttempts = jc.GenerateAttempts
	}
	setDur(&c.GenerateBackoff, jc.GenerateBackoff)
	setDur(&c.ReconcileInterval, jc.ReconcileInterval)
	setStr(&c.S3AccessKey, jc.S3AccessKey)
	setStr(&c.S3SecretKey, jc.S3SecretKey)
	setStr(&c.S3Bucket, jc.S3Bucket)
	setStr(&c.S3Region, jc.S3Region)
	setStr(&c.S3BaseEndpoint, jc.S3BaseEndpoint)
	setDur(&c.ExportURLTTL, jc.ExportURLTTL)
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDur(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
