package http

import (
	"context"
	"net/http"
	"time"

	"github.com/stackops/stackops/internal/adapter/http/response"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/ports"
)

const healthCheckTimeout = 3 * time.Second

// healthHandler answers 200 when every dependency check passes and 503 otherwise.
// Failure details go to the log, not the unauthenticated response.
func healthHandler(checks map[string]ports.HealthChecker, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		report := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check.IsHealthy(ctx); err != nil {
				log.Warn(ctx, "Health check failed", map[string]interface{}{
					"check": name,
					"error": err.Error(),
				})
				report[name] = "unavailable"
				report["status"] = "degraded"
				continue
			}
			report[name] = "ok"
		}

		if report["status"] != "ok" {
			response.ErrorWithData(w, http.StatusServiceUnavailable, "degraded", report)
			return
		}
		response.Success(w, http.StatusOK, "ok", report)
	}
}
