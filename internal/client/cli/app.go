package cli

import (
	"bufio"
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/palette/internal/client/client"
	"github.com/dmitrijs2005/palette/internal/client/config"
	"github.com/dmitrijs2005/palette/internal/client/services"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// exportDir is created under the working directory on first export.
const exportDir = "exports"

type App struct {
	config  *config.Config
	service services.PaletteService
	closers []func() error
	color   bool
	Mode    Mode
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	repos, err := client.InitDatabase(ctx, c.HistoryDBPath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	return &App{
		config:  c,
		service: services.NewPaletteService(apiClient, repos.History),
		closers: []func() error{apiClient.Close, repos.Close},
		color:   isTerminal(int(os.Stdout.Fd())),
	}, nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

// track updates the mode from the outcome of a server call.
func (a *App) track(err error) {
	switch {
	case errors.Is(err, client.ErrUnavailable):
		a.setMode(ModeOffline)
	case err == nil:
		a.setMode(ModeOnline)
	}
}

func (a *App) getStatus() string {
	if a.Mode == "" {
		return ""
	}
	return "(" + string(a.Mode) + ")"
}

// call runs fn with the configured request timeout.
func (a *App) call(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := 10 * time.Second
	if a.config != nil && a.config.RequestTimeout > 0 {
		timeout = a.config.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	a.track(err)
	return err
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		for _, c := range a.closers {
			_ = c()
		}
	}()

	log.Println("Welcome to palette CLI (type 'help' for commands)")
	if a.config != nil && a.config.AccessToken == "" {
		log.Println("No access token configured; set PALETTE_ACCESS_TOKEN or pass -t")
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
