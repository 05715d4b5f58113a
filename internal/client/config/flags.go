package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/palette/internal/flagx"
)

// parseFlags overlays the flags this package owns; everything else in args
// is ignored so other layers can share os.Args.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-d", "-r"})

	fs := flag.NewFlagSet("palette", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.HistoryDBPath, "d", cfg.HistoryDBPath, "local history database")
	timeout := fs.Int("r", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
