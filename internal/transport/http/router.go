// Package httptransport exposes the process over HTTP: health checks, metrics and the
// internal emit endpoint.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoflow/internal/platform/metrics"
	"autoflow/internal/platform/middleware"
)

// RouterConfig collects what the router serves.
type RouterConfig struct {
	Logger       *slog.Logger
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTP
	Health       *HealthHandler
	Events       *EventHandler
	ServiceToken string
}

// NewRouter wires the public health endpoints and the token guarded internal API.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Instrument)
	}

	r.Get("/healthz", cfg.Health.Live)
	r.Get("/readyz", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Events != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireServiceToken(cfg.ServiceToken, cfg.Logger))
			cfg.Events.Register(r)
		})
	}
	return r
}
