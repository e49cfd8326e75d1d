// Package whatsapp receives guest WhatsApp messages delivered by Twilio.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.channels.whatsapp")

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Publisher queues inbound messages for the conversation worker.
type Publisher interface {
	Enqueue(ctx context.Context, in conversation.Inbound) (string, error)
}

// Config holds webhook credentials. An empty AuthToken disables signature
// checks; PublicURL, when set, is the URL Twilio signed.
type Config struct {
	VerifyToken string
	AuthToken   string
	PublicURL   string
}

// Recorder receives webhook observations. *metrics.MessagingMetrics satisfies it.
type Recorder interface {
	ObserveInbound(channel, status string)
	ObserveWebhookLatency(channel string, seconds float64)
}

// Deduper remembers handled Twilio message SIDs. *events.ProcessedStore
// satisfies it.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

const dedupeProvider = "twilio"

// Option customizes the handler.
type Option func(*Handler)

// WithRecorder wires webhook metrics.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithDeduper drops webhooks whose MessageSid was already queued.
func WithDeduper(d Deduper) Option {
	return func(h *Handler) {
		h.deduper = d
	}
}

// Handler handles the WhatsApp verification handshake and inbound messages.
type Handler struct {
	cfg       Config
	resolver  property.Resolver
	publisher Publisher
	recorder  Recorder
	deduper   Deduper
	logger    *logging.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg Config, resolver property.Resolver, publisher Publisher, logger *logging.Logger, opts ...Option) *Handler {
	if resolver == nil {
		panic("whatsapp: property resolver cannot be nil")
	}
	if publisher == nil {
		panic("whatsapp: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		cfg:       cfg,
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.Component("whatsapp_webhook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleVerification answers the GET subscription challenge.
func (h *Handler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Verification failed", http.StatusForbidden)
}

// HandleInbound accepts a message, queues it and acknowledges immediately.
// Unknown numbers and empty messages are acknowledged and dropped so Twilio
// does not retry them.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "channels.whatsapp.inbound")
	defer span.End()
	started := time.Now()
	status := "error"
	defer func() { h.observe(status, started) }()

	if h.cfg.AuthToken != "" {
		webhookURL := h.cfg.PublicURL
		if webhookURL == "" {
			webhookURL = buildAbsoluteURL(r)
		}
		if !ValidateTwilioSignature(r, h.cfg.AuthToken, webhookURL) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			status = "unauthorized"
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	from := StripPrefix(webhook.From)
	to := StripPrefix(webhook.To)
	body := strings.TrimSpace(webhook.Body)
	span.SetAttributes(attribute.String("twilio.message_sid", webhook.MessageSid))
	if from == "" || body == "" {
		h.logger.Debug("ignoring whatsapp webhook without sender or text", "message_sid", webhook.MessageSid)
		status = "ignored"
		writeTwiML(w)
		return
	}

	if h.seen(ctx, webhook.MessageSid) {
		h.logger.Info("duplicate whatsapp webhook", "message_sid", webhook.MessageSid)
		status = "duplicate"
		writeTwiML(w)
		return
	}

	prop, err := h.resolver.ResolveChannel(ctx, conversation.ChannelWhatsApp, to)
	if errors.Is(err, property.ErrPropertyNotFound) {
		h.logger.Warn("whatsapp webhook for unknown number", "to", to)
		status = "no_property"
		writeTwiML(w)
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve property", "error", err, "to", to)
		span.RecordError(err)
		http.Error(w, "Failed to resolve property", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("property.id", prop.ID))

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	jobID, err := h.publisher.Enqueue(publishCtx, conversation.Inbound{
		PropertyID:      prop.ID,
		GuestIdentifier: from,
		Channel:         conversation.ChannelWhatsApp,
		Text:            body,
		GuestNameHint:   strings.TrimSpace(webhook.ProfileName),
	})
	if err != nil {
		h.logger.Error("failed to enqueue whatsapp message", "error", err, "property_id", prop.ID, "message_sid", webhook.MessageSid)
		span.RecordError(err)
		http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
		return
	}

	h.markSeen(ctx, webhook.MessageSid)
	h.logger.Info("whatsapp message accepted", "property_id", prop.ID, "job_id", jobID, "message_sid", webhook.MessageSid)
	status = "accepted"
	writeTwiML(w)
}

func (h *Handler) observe(status string, started time.Time) {
	if h.recorder == nil {
		return
	}
	h.recorder.ObserveInbound(conversation.ChannelWhatsApp, status)
	h.recorder.ObserveWebhookLatency(conversation.ChannelWhatsApp, time.Since(started).Seconds())
}

// seen reports a known SID. Lookup errors count as unseen.
func (h *Handler) seen(ctx context.Context, sid string) bool {
	if h.deduper == nil || sid == "" {
		return false
	}
	processed, err := h.deduper.AlreadyProcessed(ctx, dedupeProvider, sid)
	if err != nil {
		h.logger.Warn("dedupe check failed", "error", err, "message_sid", sid)
		return false
	}
	return processed
}

func (h *Handler) markSeen(ctx context.Context, sid string) {
	if h.deduper == nil || sid == "" {
		return
	}
	if _, err := h.deduper.MarkProcessed(ctx, dedupeProvider, sid); err != nil {
		h.logger.Warn("failed to record message sid", "error", err, "message_sid", sid)
	}
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
