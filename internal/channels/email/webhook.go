// Package email receives guest emails posted by SendGrid Inbound Parse.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/internal/sanitize"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.channels.email")

const maxFormMemory = 10 << 20

// Publisher queues inbound messages for the conversation worker.
type Publisher interface {
	Enqueue(ctx context.Context, in conversation.Inbound) (string, error)
}

// Message is a normalized inbound email.
type Message struct {
	GuestEmail string
	GuestName  string
	To         []string
	Subject    string
	Text       string
}

// Content is the text handed to the orchestrator: the subject line, a blank
// line, then the body. It is cut to the longest message the sanitizer
// accepts.
func (m Message) Content() string {
	content := fmt.Sprintf("Subject: %s\n\n%s", m.Subject, m.Text)
	if runes := []rune(content); len(runes) > sanitize.MaxRunes {
		content = strings.TrimSpace(string(runes[:sanitize.MaxRunes]))
	}
	return content
}

var originalMessageMarkers = []string{
	"-----original message-----",
	"________________________________",
}

// StripQuoted drops the quoted thread from a reply: everything from an
// "On ... wrote:" attribution or an Outlook separator onward, and any
// remaining "> " lines. The text is returned unchanged when nothing else
// would be left.
func StripQuoted(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isAttribution(trimmed, lines[i+1:]) || isOriginalMarker(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}
	stripped := strings.TrimSpace(strings.Join(kept, "\n"))
	if stripped == "" {
		return strings.TrimSpace(text)
	}
	return stripped
}

// isAttribution matches "On <date>, <name> wrote:", which mail clients
// often wrap onto a second line.
func isAttribution(line string, rest []string) bool {
	if !strings.HasPrefix(line, "On ") {
		return false
	}
	if strings.HasSuffix(line, "wrote:") {
		return true
	}
	return len(rest) > 0 && strings.HasSuffix(strings.TrimSpace(rest[0]), "wrote:")
}

func isOriginalMarker(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range originalMessageMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}

// Parse normalizes SendGrid's form fields. ok is false when the email has
// no sender or no text body.
func Parse(from, to, subject, text string) (Message, bool) {
	text = StripQuoted(strings.TrimSpace(text))
	from = strings.TrimSpace(from)
	if text == "" || from == "" {
		return Message{}, false
	}

	msg := Message{Subject: strings.TrimSpace(subject), Text: text}
	if msg.Subject == "" {
		msg.Subject = "No Subject"
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		msg.GuestEmail = strings.ToLower(addr.Address)
		msg.GuestName = addr.Name
	} else {
		msg.GuestEmail = strings.ToLower(strings.Trim(from, "<> "))
	}

	if list, err := mail.ParseAddressList(to); err == nil {
		for _, addr := range list {
			msg.To = append(msg.To, addr.Address)
		}
	} else if to = strings.TrimSpace(to); to != "" {
		msg.To = []string{to}
	}
	return msg, true
}

// Recorder receives webhook observations. *metrics.MessagingMetrics satisfies it.
type Recorder interface {
	ObserveInbound(channel, status string)
	ObserveWebhookLatency(channel string, seconds float64)
}

// Option customizes the handler.
type Option func(*Handler)

// WithRecorder wires webhook metrics.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// Handler handles SendGrid inbound parse posts.
type Handler struct {
	resolver  property.Resolver
	publisher Publisher
	recorder  Recorder
	logger    *logging.Logger
}

// NewHandler creates an inbound email handler.
func NewHandler(resolver property.Resolver, publisher Publisher, logger *logging.Logger, opts ...Option) *Handler {
	if resolver == nil {
		panic("email: property resolver cannot be nil")
	}
	if publisher == nil {
		panic("email: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.Component("email_webhook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleInbound queues the email and acknowledges. Emails for unknown
// mailboxes are acknowledged and dropped.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "channels.email.inbound")
	defer span.End()
	started := time.Now()
	status := "error"
	defer func() { h.observe(status, started) }()

	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.Error("failed to parse inbound email", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	msg, ok := Parse(r.FormValue("from"), r.FormValue("to"), r.FormValue("subject"), r.FormValue("text"))
	if !ok {
		status = "ignored"
		writeStatus(w, status)
		return
	}

	prop, err := h.resolve(ctx, msg.To)
	if errors.Is(err, property.ErrPropertyNotFound) {
		h.logger.Warn("inbound email for unknown mailbox", "to", strings.Join(msg.To, ","))
		status = "no_property"
		writeStatus(w, status)
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve property", "error", err)
		span.RecordError(err)
		http.Error(w, "Failed to resolve property", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("property.id", prop.ID))

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	jobID, err := h.publisher.Enqueue(publishCtx, conversation.Inbound{
		PropertyID:      prop.ID,
		GuestIdentifier: msg.GuestEmail,
		Channel:         conversation.ChannelEmail,
		Text:            msg.Content(),
		GuestNameHint:   msg.GuestName,
		Subject:         msg.Subject,
	})
	if err != nil {
		h.logger.Error("failed to enqueue inbound email", "error", err, "property_id", prop.ID)
		span.RecordError(err)
		http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
		return
	}

	h.logger.Info("inbound email accepted", "property_id", prop.ID, "job_id", jobID)
	status = "accepted"
	writeStatus(w, "processing")
}

func (h *Handler) observe(status string, started time.Time) {
	if h.recorder == nil {
		return
	}
	h.recorder.ObserveInbound(conversation.ChannelEmail, status)
	h.recorder.ObserveWebhookLatency(conversation.ChannelEmail, time.Since(started).Seconds())
}

func (h *Handler) resolve(ctx context.Context, recipients []string) (*property.Config, error) {
	for _, to := range recipients {
		prop, err := h.resolver.ResolveChannel(ctx, conversation.ChannelEmail, to)
		if errors.Is(err, property.ErrPropertyNotFound) {
			continue
		}
		return prop, err
	}
	return nil, property.ErrPropertyNotFound
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":%q}`, status)
}
