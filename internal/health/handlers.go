// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/paymob-gateway/internal/common"
)

// Handler serves the health endpoints. Redis is optional; when nil the
// service runs on the in-process cache and readiness has nothing to check.
type Handler struct {
	Redis *redis.Client
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, status{Status: "ok"})
}

// Ready reports whether downstream dependencies are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	code := http.StatusOK

	if h.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down: " + err.Error()
			code = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	body := status{Status: "ok", Checks: checks}
	if code != http.StatusOK {
		body.Status = "degraded"
	}
	common.JSON(w, code, body)
}
