package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/baitwatch/internal/adapter/api/handler"
	"github.com/V4T54L/baitwatch/internal/adapter/api/middleware"
)

// NewAdminRouter creates the read-only admin HTTP surface of the ingest
// worker: health, Prometheus metrics, loaded signatures and an on-demand
// classification endpoint.
func NewAdminRouter(adminHandler *handler.AdminHandler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	r.Get("/health", adminHandler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/signatures", adminHandler.ListSignatures)
	r.Get("/classify", adminHandler.Classify)

	return r
}
