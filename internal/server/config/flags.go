package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/palette/internal/flagx"
)

// parseFlags applies command-line overrides.
//
//	-a string   HTTP bind address
//	-g string   gRPC bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret
//	-k string   Stripe secret key
//	-w string   Stripe webhook signing secret
//	-plans      subscription price map, "price:limit,..." (-1 = unlimited)
//	-packs      credit pack price map, "price:credits,..."
//	-l string   log level
func parseFlags(c *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-s", "-k", "-w", "-plans", "-packs", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.HTTPAddr, "a", c.HTTPAddr, "HTTP bind address")
	fs.StringVar(&c.GRPCAddr, "g", c.GRPCAddr, "gRPC bind address")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.JWTSecret, "s", c.JWTSecret, "JWT secret")
	fs.StringVar(&c.StripeSecretKey, "k", c.StripeSecretKey, "Stripe secret key")
	fs.StringVar(&c.StripeWebhookSecret, "w", c.StripeWebhookSecret, "Stripe webhook secret")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	plans := fs.String("plans", formatPriceMap(c.Plans), "subscription price limits")
	packs := fs.String("packs", formatPriceMap(c.CreditPacks), "credit pack amounts")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if c.Plans, err = parsePriceMap(*plans); err != nil {
		return err
	}
	if c.CreditPacks, err = parsePriceMap(*packs); err != nil {
		return err
	}
	return nil
}
