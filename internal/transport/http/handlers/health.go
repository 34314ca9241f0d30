package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/seatwatch/internal/transport/http/response"
)

// ReadyCheck reports whether one dependency is usable.
type ReadyCheck func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]ReadyCheck
	timeout time.Duration
}

func NewHealthHandler(checks map[string]ReadyCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.Data(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every check; any failure makes the whole endpoint 503.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out := map[string]string{}
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out[name] = err.Error()
			ready = false
			continue
		}
		out[name] = "ok"
	}

	if !ready {
		response.Fail(w, http.StatusServiceUnavailable, "not_ready", "dependency check failed", out, "")
		return
	}
	out["status"] = "ok"
	response.Data(w, http.StatusOK, out)
}
