package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// Check is a named dependency probe.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthCheckHandler reports liveness without checks and readiness with
// them. Every check runs under timeout; any failure answers 503 with a JSON
// body naming the failing checks.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		status := map[string]string{}
		var failed []string
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				status[c.Name] = err.Error()
				failed = append(failed, c.Name)
				continue
			}
			status[c.Name] = "ok"
		}
		slices.Sort(failed)

		code := http.StatusOK
		body := map[string]any{"status": "ok", "checks": status}
		if len(failed) > 0 {
			code = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["failed"] = failed
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
