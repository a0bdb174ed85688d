package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsRouter serves the operational endpoints of a worker process:
//
//	GET /metrics   prometheus exposition of gatherer
//	GET /healthz   liveness
//	GET /readyz    readiness, running checks
func OpsRouter(gatherer prometheus.Gatherer, log *slog.Logger, checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", HealthCheckHandler(log, 0))
	r.Get("/readyz", HealthCheckHandler(log, 5*time.Second, checks...))

	return r
}
