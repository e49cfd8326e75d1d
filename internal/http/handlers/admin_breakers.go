package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// BreakerRegistry is the part of *breaker.Registry the admin API needs.
type BreakerRegistry interface {
	Statuses() []breaker.Status
	Reset(service string)
}

// AdminBreakersHandler exposes circuit breaker state to operators.
type AdminBreakersHandler struct {
	registry BreakerRegistry
	logger   *logging.Logger
}

func NewAdminBreakersHandler(registry BreakerRegistry, logger *logging.Logger) *AdminBreakersHandler {
	if registry == nil {
		panic("handlers: breaker registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBreakersHandler{registry: registry, logger: logger.Component("admin_breakers")}
}

// ListBreakers handles GET /admin/circuit-breakers.
func (h *AdminBreakersHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Statuses()
	if statuses == nil {
		statuses = []breaker.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": statuses})
}

// ResetBreaker handles POST /admin/circuit-breakers/{service}/reset.
func (h *AdminBreakersHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if service == "" {
		jsonError(w, "missing service", http.StatusBadRequest)
		return
	}
	h.registry.Reset(service)
	h.logger.Info("circuit breaker reset by operator", "service", service)
	writeJSON(w, http.StatusOK, map[string]string{"service": service, "status": "reset"})
}
