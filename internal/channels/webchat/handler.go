// Package webchat serves the website chat widget. Unlike the messaging
// channels it answers synchronously.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Processor runs one guest turn. *conversation.Orchestrator satisfies it.
type Processor interface {
	ProcessMessage(ctx context.Context, in conversation.Inbound) (*conversation.Result, error)
}

// ConversationReader loads an existing conversation.
type ConversationReader interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
}

// StartRequest opens or continues a widget session.
type StartRequest struct {
	PropertyID string `json:"property_id"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"`
	GuestName  string `json:"guest_name,omitempty"`
}

// MessageRequest is a follow-up on a known conversation.
type MessageRequest struct {
	Message   string `json:"message"`
	GuestName string `json:"guest_name,omitempty"`
}

// Response is the widget reply.
type Response struct {
	*conversation.Result
	SessionID string `json:"session_id,omitempty"`
}

// Handler serves the widget endpoints.
type Handler struct {
	processor     Processor
	conversations ConversationReader
	turns         *turnLocks
	logger        *logging.Logger
}

// NewHandler creates a web chat handler.
func NewHandler(processor Processor, conversations ConversationReader, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webchat: processor cannot be nil")
	}
	if conversations == nil {
		panic("webchat: conversation reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		processor:     processor,
		conversations: conversations,
		turns:         newTurnLocks(),
		logger:        logger.Component("webchat"),
	}
}

// GuestIdentifier is the identifier recorded for a widget session.
func GuestIdentifier(sessionID string) string {
	return "web:" + sessionID
}

// StartConversation handles POST /v1/conversations.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.PropertyID = strings.TrimSpace(req.PropertyID)
	if req.PropertyID == "" {
		http.Error(w, "property_id is required", http.StatusBadRequest)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	result, err := h.process(r.Context(), conversation.Inbound{
		PropertyID:      req.PropertyID,
		GuestIdentifier: GuestIdentifier(sessionID),
		Channel:         conversation.ChannelWeb,
		Text:            req.Message,
		GuestNameHint:   req.GuestName,
	})
	if err != nil {
		h.writeError(w, err, req.PropertyID)
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: result, SessionID: sessionID})
}

// SendMessage handles POST /v1/conversations/{conversationID}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	var req MessageRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	conv, err := h.conversations.Get(r.Context(), conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	result, err := h.process(r.Context(), conversation.Inbound{
		PropertyID:      conv.PropertyID,
		GuestIdentifier: conv.GuestIdentifier,
		Channel:         conv.Channel,
		Text:            req.Message,
		GuestNameHint:   req.GuestName,
	})
	if err != nil {
		h.writeError(w, err, conv.PropertyID)
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: result})
}

// process runs one turn while holding the conversation's lock, so two
// requests from the same session never interleave history reads and writes.
func (h *Handler) process(ctx context.Context, in conversation.Inbound) (*conversation.Result, error) {
	unlock, err := h.turns.acquire(ctx, conversation.ConversationKey(in))
	if err != nil {
		return nil, err
	}
	defer unlock()
	return h.processor.ProcessMessage(ctx, in)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, propertyID string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("web chat request abandoned", "error", err, "property_id", propertyID)
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	case errors.Is(err, conversation.ErrRejected), errors.Is(err, conversation.ErrInvalidInbound):
		http.Error(w, "message rejected", http.StatusBadRequest)
	case errors.Is(err, property.ErrPropertyNotFound):
		http.Error(w, "Property not found", http.StatusNotFound)
	default:
		h.logger.Error("web chat message failed", "error", err, "property_id", propertyID)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
