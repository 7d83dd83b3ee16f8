package highscorerouter

import (
	"context"
	"log/slog"
	"time"

	highscorehandlers "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/handlers"
	"github.com/Black-And-White-Club/highscore-ledger/internal/eventbus"
	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// HighscoreRouter handles Watermill handler registration for highscore events.
type HighscoreRouter struct {
	logger     *slog.Logger
	router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	tracer     trace.Tracer
	registry   *prometheus.Registry
	maxRetries int
}

// NewHighscoreRouter creates a new HighscoreRouter. A nil registry disables
// router metrics.
func NewHighscoreRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber eventbus.EventBus,
	publisher eventbus.EventBus,
	tracer trace.Tracer,
	registry *prometheus.Registry,
) *HighscoreRouter {
	return &HighscoreRouter{
		logger:     logger,
		router:     router,
		subscriber: subscriber,
		publisher:  publisher,
		tracer:     tracer,
		registry:   registry,
		maxRetries: 3,
	}
}

// Configure adds middleware and registers handlers.
func (r *HighscoreRouter) Configure(_ context.Context, handlers highscorehandlers.Handlers) error {
	if r.registry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(r.registry, "highscore", "router")
		builder.AddPrometheusRouterMetrics(r.router)
	}

	r.router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      r.maxRetries,
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2,
			Logger:          watermill.NewSlogLogger(r.logger),
		}.Middleware,
	)

	r.registerHandlers(handlers)
	return nil
}

func (r *HighscoreRouter) registerHandlers(handlers highscorehandlers.Handlers) {
	registerHandler(r, highscoreevents.RecordCreateRequestedV1, handlers.HandleRecordCreateRequested)
	registerHandler(r, highscoreevents.ScoreSubmitRequestedV1, handlers.HandleScoreSubmitRequested)
	registerHandler(r, highscoreevents.RecordRetrieveRequestedV1, handlers.HandleRecordRetrieveRequested)

	r.logger.Info("Highscore handlers registered",
		slog.Int("handlers", len(r.router.Handlers())),
		slog.Int("max_retries", r.maxRetries),
	)
}

// registerHandler subscribes handler to topic. Results are published to the
// topic each one names, so the publish topic is left empty.
func registerHandler[T any](
	r *HighscoreRouter,
	topic string,
	handler func(context.Context, *T) ([]handlerwrapper.Result, error),
) {
	name := "highscore." + topic
	r.router.AddHandler(
		name,
		topic,
		r.subscriber,
		"",
		r.publisher,
		handlerwrapper.WrapTransformingTyped(name, r.logger, r.tracer, handler,
			handlerwrapper.WithDecodeFailure(highscorehandlers.RejectUndecodable(topic)),
		),
	)
}

// Close shuts down the router.
func (r *HighscoreRouter) Close() error {
	return r.router.Close()
}
