package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore"
	highscorehttp "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/httpapi"
	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/db/bundb"
	"github.com/Black-And-White-Club/highscore-ledger/internal/eventbus"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// App wires the ledger's storage, event bus, HTTP server and modules.
type App struct {
	Config          *config.Config
	Observability   *observability.Observability
	DB              *bundb.DBService
	EventBus        eventbus.EventBus
	Router          *message.Router
	HTTPServer      *http.Server
	HighscoreModule *highscore.Module

	logger *slog.Logger
}

// NewApp initializes the application from cfg.
func NewApp(ctx context.Context, cfg *config.Config, obs *observability.Observability) (*App, error) {
	logger := obs.Provider.Logger

	dbService, err := bundb.NewBunDBService(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	// SQLite is the local mode; Postgres schemas are managed with cmd/bun.
	if cfg.Database.Driver == config.DriverSQLite {
		if err := bundb.MigrateAll(ctx, dbService.GetDB(), logger); err != nil {
			_ = dbService.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var bus eventbus.EventBus
	if cfg.NATS.URL != "" {
		bus, err = eventbus.NewNATSEventBus(ctx, cfg.NATS.URL, cfg.NATS.DurablePrefix, eventbus.DefaultStream, logger)
		if err != nil {
			_ = dbService.Close()
			return nil, fmt.Errorf("failed to initialize event bus: %w", err)
		}
	} else {
		logger.WarnContext(ctx, "NATS URL not set, using in-process event bus")
		bus = eventbus.NewInMemoryEventBus(logger)
	}

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.HTTP.ShutdownTimeout,
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		_ = bus.Close()
		_ = dbService.Close()
		return nil, fmt.Errorf("failed to create watermill router: %w", err)
	}

	httpRouter := highscorehttp.NewBaseRouter(obs.Registry.Prometheus, dbService.GetDB(), cfg.HTTP.TrustProxyHeaders)

	module, err := highscore.NewHighscoreModule(ctx, cfg, obs, bus, router, httpRouter, ctx, dbService.GetDB())
	if err != nil {
		_ = bus.Close()
		_ = dbService.Close()
		return nil, fmt.Errorf("failed to initialize highscore module: %w", err)
	}

	return &App{
		Config:        cfg,
		Observability: obs,
		DB:            dbService,
		EventBus:      bus,
		Router:        router,
		HTTPServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpRouter,
			ReadHeaderTimeout: 10 * time.Second,
		},
		HighscoreModule: module,
		logger:          logger,
	}, nil
}

// Run serves events and HTTP until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go a.HighscoreModule.Run(ctx, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Router.Run(ctx); err != nil {
			errCh <- fmt.Errorf("watermill router stopped: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", a.HTTPServer.Addr))
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server stopped: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.ErrorContext(ctx, "Component failed, shutting down", slog.Any("error", runErr))
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown failed", slog.Any("error", err))
	}

	wg.Wait()
	return runErr
}

// Close releases modules, the event bus, the database and telemetry, in that order.
func (a *App) Close() error {
	var errs []error
	if a.HighscoreModule != nil {
		errs = append(errs, a.HighscoreModule.Close())
	}
	if a.EventBus != nil {
		errs = append(errs, a.EventBus.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Observability != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.Observability.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
