package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/bidhaus/bidhaus-backend/api/responses"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
)

const readyCheckTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Bidhaus-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the API's backing stores before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Bidhaus-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false

		checkOne := func(name string, p interface {
			Ping(context.Context) error
		}) {
			if p == nil {
				checks[name] = "skipped"
				return
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "down"
				failed = true
				return
			}
			checks[name] = "ok"
		}

		checkOne("database", dbP)
		checkOne("redis", redisP)

		if failed {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "backing store unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
