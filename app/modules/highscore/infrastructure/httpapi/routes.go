package highscorehttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the ledger API under /v1.
func RegisterRoutes(r chi.Router, h *Handlers, verifier TokenVerifier, limiter *KeyedRateLimiter) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(IdentifyCaller(verifier))
		r.Use(RateLimitMiddleware(limiter))

		// Public routes
		r.Get("/leaderboard", h.HandleLeaderboard)
		r.Get("/leaderboard.xlsx", h.HandleLeaderboardExport)
		r.Get("/records/{player}", h.HandleGetRecord)
		r.Get("/records/{player}/history", h.HandleGetHistory)
		r.Get("/records/{player}/history.png", h.HandleGetHistoryChart)

		// Owner routes
		r.Group(func(r chi.Router) {
			r.Use(RequireCaller)
			r.Post("/records", h.HandleCreateRecord)
			r.Post("/records/{player}/scores", h.HandleSubmitScore)
		})
	})
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewBaseRouter builds the service's root HTTP router with common middleware,
// /healthz and, when gatherer is non-nil, /metrics.
func NewBaseRouter(gatherer prometheus.Gatherer, db Pinger, trustProxyHeaders bool) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxyHeaders {
		// rewrites RemoteAddr, which keys anonymous rate limiting
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
