package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/jwoolee/beautylink-backend/api/responses"
	"github.com/jwoolee/beautylink-backend/pkg/config"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BeautyLink-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness by pinging the hard dependencies. A nil
// Pinger is treated as not wired for this deployment and skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, cache Pinger) http.HandlerFunc {
	deps := map[string]Pinger{
		"postgres": db,
		"redis":    cache,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BeautyLink-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		ready := true
		for name, dep := range deps {
			if dep == nil {
				statuses[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				statuses[name] = "down"
				ready = false
				if logg != nil {
					logCtx := logg.WithField(r.Context(), "dependency", name)
					logg.Error(logCtx, "readiness check failed", err)
				}
				continue
			}
			statuses[name] = "ok"
		}

		payload := map[string]any{"status": "ready", "dependencies": statuses}
		if !ready {
			payload["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, payload)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
