package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/crm"
	httpapi "github.com/aussiebroadwan/sfgate/internal/gate/http"
	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the broker with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store // nil in memory-only mode
	cipher *cryptox.Cipher

	// Services
	tokenStore          *service.TokenStore
	flow                *service.OAuthFlow
	refresh             *service.RefreshCoordinator
	cache               *service.ConnectionCache
	housekeepingService *service.HousekeepingService

	// HTTP server
	server       *http.Server
	router       *httpapi.Router
	orchestrator *ShutdownOrchestrator
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sfgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("GATE_CLIENT_ID and GATE_CLIENT_SECRET are required")
	}
	if cfg.MasterSecret == "" {
		return nil, errors.New("GATE_MASTER_SECRET is required")
	}

	cipher, err := cryptox.NewCipher([]byte(cfg.MasterSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	app.cipher = cipher

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initShutdown()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("sfgate starting",
		"port", app.cfg.Port, "version", BuildVersion,
		"durable_store", app.db != nil)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		app.orchestrator.Shutdown()
	}

	return nil
}

// initDatabase opens the durable store. An empty database file means
// memory-only operation: credentials do not survive a restart.
func (app *Application) initDatabase() error {
	if app.cfg.DatabaseFile == "" {
		app.logger.Warn("no database file configured, running memory-only")
		return nil
	}

	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenStore = service.NewTokenStore(app.db, app.cipher, app.logger)

	app.flow = service.NewOAuthFlow(service.OAuthConfig{
		LoginURL:     app.cfg.LoginURL,
		ClientID:     app.cfg.ClientID,
		ClientSecret: app.cfg.ClientSecret,
		RedirectURI:  app.cfg.RedirectURI,
	}, nil, app.logger)

	app.refresh = service.NewRefreshCoordinator(app.tokenStore, app.flow, app.logger)
	app.cache = service.NewConnectionCache(app.flow, nil, app.logger)

	app.housekeepingService = service.NewHousekeepingService(
		app.tokenStore,
		app.flow,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initShutdown wires the shutdown sequence: drain, stop the server and
// housekeeping, then a final cleanup sweep before the store closes.
func (app *Application) initShutdown() {
	orch := NewShutdownOrchestrator(app.logger)
	orch.ShutdownTimeout = app.cfg.ShutdownTimeout
	orch.DrainTimeout = app.cfg.DrainTimeout

	orch.AddShutdownHandler("http_server", func(ctx context.Context) error {
		return app.server.Shutdown(ctx)
	})
	orch.AddShutdownHandler("storage", func(ctx context.Context) error {
		// Housekeeping must be fully stopped before the store closes, so one
		// handler sequences both rather than racing as siblings.
		app.housekeepingService.Stop()

		if removed, err := app.tokenStore.Cleanup(ctx); err == nil && removed > 0 {
			app.logger.Info("final cleanup sweep", "removed_records", removed)
		}
		return app.tokenStore.Close()
	})

	app.orchestrator = orch
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger)

	router.TokenStore = app.tokenStore
	router.Flow = app.flow
	router.Refresh = app.refresh
	router.Cache = app.cache
	router.CRM = crm.NewClient(nil, app.cfg.APIVersion)
	router.Drain = app.orchestrator
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
