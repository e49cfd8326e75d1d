package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// Pinger checks a dependency. *pgxpool.Pool satisfies it directly; Redis is
// wrapped with PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports liveness plus the reachability of each dependency.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *logging.Logger
}

// NewHealthHandler creates a handler for the named dependency checks.
func NewHealthHandler(checks map[string]Pinger, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: logger.Component("health")}
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health answers GET /health. Any failing dependency turns the response
// into a 503 with status "degraded".
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if len(h.checks) > 0 {
		resp.Dependencies = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("dependency check failed", "dependency", name, "error", err)
			resp.Dependencies[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
