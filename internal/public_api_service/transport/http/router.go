package http

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movielib/golang_services/internal/public_api_service/middleware"
)

// RouterConfig carries what NewRouter mounts.
type RouterConfig struct {
	JWT            middleware.JWTConfig
	ExportHandler  *ExportHandler
	HealthHandler  *HealthHandler
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface:
//
//	GET  /health          liveness and export availability
//	GET  /metrics         Prometheus scrape endpoint
//	POST /export/movies   admin only, answers 202 and mails the CSV later
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", cfg.HealthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.JWTAuthMiddleware(cfg.JWT, cfg.Logger))
		admin.Use(middleware.RequireScope(middleware.ScopeAdmin, cfg.Logger))
		admin.Post("/export/movies", cfg.ExportHandler.RequestMovieExport)
	})

	return r
}
