// Package server wires the palette backend together: the database and its
// migrations, the services, the HTTP API with the webhook endpoint, the
// gRPC surface and the billing retry worker. It also handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/billing"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/httpapi"
	"github.com/dmitrijs2005/palette/internal/server/metrics"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/palette/internal/server/services"

	gs "github.com/dmitrijs2005/palette/internal/server/grpc"
)

var sqlOpen = sql.Open

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	metrics *metrics.Metrics

	http       *http.Server
	grpc       *gs.GRPCServer
	reconciler *billing.Reconciler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	verifier, err := newVerifier(c)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{config: c, logger: logger, db: db, metrics: metrics.New()}
	app.build(rm, verifier)
	return app, nil
}

func newVerifier(c *config.Config) (auth.Verifier, error) {
	var chain auth.Chain
	if c.OIDCJWKSURL != "" {
		v, err := auth.NewJWKSVerifier(c.OIDCIssuer, c.OIDCAudience, c.OIDCJWKSURL)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if c.JWTSecret != "" {
		chain = append(chain, auth.NewHMACVerifier([]byte(c.JWTSecret)))
	}
	if len(chain) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

func (app *App) build(rm repomanager.RepositoryManager, verifier auth.Verifier) {
	c := app.config

	users := services.NewUserService(app.db, rm)
	generations := services.NewGenerationService(app.db, rm, c, app.logger).WithObserver(app.metrics)
	exports := services.NewExportService(app.db, rm, c)

	var gateway billing.Gateway
	if c.StripeSecretKey != "" {
		gateway = billing.NewStripeGateway(billing.NewStripeClient(c.StripeSecretKey))
	} else {
		app.logger.Warn(context.Background(), "stripe secret key not set, checkout and portal disabled")
	}
	checkout := billing.NewCheckoutService(app.db, rm, gateway, c, app.logger)
	app.reconciler = billing.NewReconciler(app.db, rm, c, app.logger).WithObserver(app.metrics)

	h := httpapi.NewHandler(verifier, users, generations, exports, checkout, app.reconciler, app.logger)
	app.http = &http.Server{
		Addr:              c.HTTPAddr,
		Handler:           h.Routes(app.metrics.Middleware, app.metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.grpc = gs.NewGRPCServer(c.GRPCAddr, app.logger, verifier, gs.Services{
		Users:       users,
		Generations: generations,
		Exports:     exports,
		Checkout:    checkout,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.http.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.http.Addr)
	if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		billing.NewRetryWorker(app.reconciler, app.config.ReconcileInterval, app.logger).Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "closing database", "error", err)
	}
	app.logger.Info(context.Background(), "Stopped")
}
