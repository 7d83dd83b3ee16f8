package highscore

import (
	"context"
	"fmt"
	"sync"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscorehandlers "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/handlers"
	highscorehttp "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/httpapi"
	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	highscorerouter "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/router"
	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/internal/eventbus"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

// Module represents the highscore module.
type Module struct {
	HighscoreService highscoreservice.Service
	HighscoreRouter  *highscorerouter.HighscoreRouter
	cancelFunc       context.CancelFunc
	observability    *observability.Observability
}

// NewHighscoreModule creates and initializes the highscore module. When
// httpRouter is non-nil the HTTP API is mounted on it.
func NewHighscoreModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	eventBus eventbus.EventBus,
	router *message.Router,
	httpRouter chi.Router,
	routerCtx context.Context,
	db *bun.DB,
) (*Module, error) {
	logger := obs.Provider.Logger
	tracer := obs.Registry.Tracer

	logger.InfoContext(ctx, "highscore.NewHighscoreModule initializing",
		"ledger_id", cfg.Ledger.ID,
	)

	// 1. Initialize Repository
	repo := highscoredb.NewRepository(db)

	// 2. Initialize Service
	service := highscoreservice.NewHighscoreService(repo, logger, obs.Registry.HighscoreMetrics, tracer, db, cfg.Ledger.ID)

	// 3. Initialize Handlers
	verifier := identity.NewVerifier(cfg.Ledger.ID, cfg.Auth.MaxTokenTTL)
	handlers := highscorehandlers.NewHighscoreHandlers(service, verifier, logger, tracer)

	// 4. Initialize Router
	highscoreRouter := highscorerouter.NewHighscoreRouter(
		logger,
		router,
		eventBus,
		eventBus,
		tracer,
		obs.Registry.Prometheus,
	)

	// 5. Configure the router with handlers
	if err := highscoreRouter.Configure(routerCtx, handlers); err != nil {
		return nil, fmt.Errorf("failed to configure highscore router: %w", err)
	}

	// 6. Register HTTP routes
	if httpRouter != nil {
		limiter := highscorehttp.NewKeyedRateLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)
		httpHandlers := highscorehttp.NewHandlers(service, cfg.Ledger.ID, logger, tracer)
		highscorehttp.RegisterRoutes(httpRouter, httpHandlers, verifier, limiter)
	}

	return &Module{
		HighscoreService: service,
		HighscoreRouter:  highscoreRouter,
		observability:    obs,
	}, nil
}

// Run starts the highscore module.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Provider.Logger
	logger.InfoContext(ctx, "Starting highscore module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Highscore module goroutine stopped")
}

// Close shuts down the highscore module.
func (m *Module) Close() error {
	logger := m.observability.Provider.Logger
	logger.Info("Stopping highscore module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.HighscoreRouter != nil {
		if err := m.HighscoreRouter.Close(); err != nil {
			logger.Error("Error closing HighscoreRouter from module", "error", err)
			return fmt.Errorf("error closing HighscoreRouter: %w", err)
		}
	}

	logger.Info("Highscore module stopped")
	return nil
}
