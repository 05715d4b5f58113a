package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the palette CLI.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	HistoryDBPath      string
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.HistoryDBPath = "palette.db"
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config from defaults, the environment, an optional
// JSON file and command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return load(os.Args[1:], os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, lookup)
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(c *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("PALETTE_SERVER_ADDR"); ok && v != "" {
		c.ServerEndpointAddr = v
	}
	if v, ok := lookup("PALETTE_ACCESS_TOKEN"); ok && v != "" {
		c.AccessToken = v
	}
	if v, ok := lookup("PALETTE_HISTORY_DB"); ok && v != "" {
		c.HistoryDBPath = v
	}
}
