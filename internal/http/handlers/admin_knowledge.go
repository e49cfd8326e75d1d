package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

const maxKnowledgeBody = 4 << 20

// KnowledgeReplacer is satisfied by *knowledge.Ingestor.
type KnowledgeReplacer interface {
	Replace(ctx context.Context, propertyID string, inputs []knowledge.DocumentInput) (int, error)
}

// AdminKnowledgeHandler handles knowledge base bulk replacement.
type AdminKnowledgeHandler struct {
	ingestor   KnowledgeReplacer
	properties property.Lookup
	logger     *logging.Logger
}

func NewAdminKnowledgeHandler(ingestor KnowledgeReplacer, properties property.Lookup, logger *logging.Logger) *AdminKnowledgeHandler {
	if ingestor == nil {
		panic("handlers: knowledge ingestor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminKnowledgeHandler{ingestor: ingestor, properties: properties, logger: logger.Component("admin_knowledge")}
}

// PutKnowledge replaces a property's knowledge base.
// PUT /admin/properties/{propertyID}/knowledge
func (h *AdminKnowledgeHandler) PutKnowledge(w http.ResponseWriter, r *http.Request) {
	propertyID := strings.TrimSpace(chi.URLParam(r, "propertyID"))
	if propertyID == "" {
		jsonError(w, "missing propertyID", http.StatusBadRequest)
		return
	}

	if h.properties != nil {
		if _, err := h.properties.Get(r.Context(), propertyID); err != nil {
			if errors.Is(err, property.ErrPropertyNotFound) {
				jsonError(w, "property not found", http.StatusNotFound)
				return
			}
			h.logger.Error("failed to load property", "property_id", propertyID, "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	var payload struct {
		Documents []knowledge.DocumentInput `json:"documents"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxKnowledgeBody)).Decode(&payload); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(payload.Documents) == 0 {
		jsonError(w, "documents must not be empty", http.StatusBadRequest)
		return
	}

	count, err := h.ingestor.Replace(r.Context(), propertyID, payload.Documents)
	if errors.Is(err, knowledge.ErrInvalidDocument) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to replace knowledge", "property_id", propertyID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"property_id": propertyID,
		"documents":   count,
		"status":      "stored",
	})
}
