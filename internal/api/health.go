// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/relatadb/relata/internal/platform/respond"
)

// readyProbeTimeout bounds each dependency check in the readiness probe.
const readyProbeTimeout = 2 * time.Second

// healthPayload renders the monitor snapshot for the health action.
func (g *Gateway) healthPayload(_ context.Context) any {
	if g.monitor == nil || !g.monitor.Enabled() {
		return map[string]any{"status": "ok"}
	}

	stats := g.monitor.Snapshot()
	return map[string]any{
		"status":  stats.State,
		"score":   stats.HealthScore,
		"metrics": stats,
	}
}

// Liveness is the /health probe: 200 whenever the process serves requests.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respond.OK(w, map[string]string{"status": "ok"})
	}
}

// Readiness is the /ready probe: 200 only when the database (and Redis,
// when configured) answer.
func Readiness(db *sql.DB, pingRedis func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable,
				map[string]string{"status": "unavailable", "reason": "database"})
			return
		}

		if pingRedis != nil {
			if err := pingRedis(ctx); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable,
					map[string]string{"status": "unavailable", "reason": "redis"})
				return
			}
		}

		respond.OK(w, map[string]string{"status": "ready"})
	}
}
