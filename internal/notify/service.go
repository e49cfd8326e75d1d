package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// transcriptTail is how many recent messages a handoff alert quotes.
const transcriptTail = 10

// Service sends staff notifications.
type Service struct {
	email        EmailSender
	defaultTo    string
	dashboardURL string
	logger       *logging.Logger
}

// NewService creates a notification service. defaultTo receives alerts for
// properties without a notification address; dashboardURL, when set, is
// linked from the alert.
func NewService(email EmailSender, defaultTo, dashboardURL string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:        email,
		defaultTo:    strings.TrimSpace(defaultTo),
		dashboardURL: strings.TrimRight(strings.TrimSpace(dashboardURL), "/"),
		logger:       logger,
	}
}

var _ conversation.HandoffNotifier = (*Service)(nil)

// NotifyHandoff emails staff that a guest asked for a person.
func (s *Service) NotifyHandoff(ctx context.Context, notice conversation.HandoffNotice) error {
	if s.email == nil {
		s.logger.Debug("notify: email not configured, skipping handoff alert", "conversation_id", notice.Conversation.ID)
		return nil
	}

	to := s.defaultTo
	propertyName := "your property"
	if notice.Property != nil {
		if addr := strings.TrimSpace(notice.Property.NotificationEmail); addr != "" {
			to = addr
		}
		if name := strings.TrimSpace(notice.Property.Name); name != "" {
			propertyName = name
		}
	}
	if to == "" {
		return errors.New("notify: no recipient for handoff alert")
	}

	msg := EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("HANDOFF ALERT: Guest on %s", channelTitle(notice.Conversation.Channel)),
		Body:    s.handoffText(notice, propertyName),
		HTML:    s.handoffHTML(notice, propertyName),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send handoff alert: %w", err)
	}
	s.logger.Info("notify: handoff alert sent", "to", to, "conversation_id", notice.Conversation.ID)
	return nil
}

func (s *Service) handoffText(notice conversation.HandoffNotice, propertyName string) string {
	conv := notice.Conversation
	var b strings.Builder
	fmt.Fprintf(&b, "A guest at %s needs assistance.\n\n", propertyName)
	fmt.Fprintf(&b, "Guest: %s (%s)\n", guestName(conv.GuestName), conv.GuestIdentifier)
	fmt.Fprintf(&b, "Channel: %s\n", channelTitle(conv.Channel))
	fmt.Fprintf(&b, "Conversation: %s\n", conv.ID)
	if link := s.conversationLink(conv.ID); link != "" {
		fmt.Fprintf(&b, "Dashboard: %s\n", link)
	}
	fmt.Fprintf(&b, "\nTrigger: %s\n", notice.TriggerMessage)
	if lines := tail(notice.Transcript); len(lines) > 0 {
		b.WriteString("\nRecent messages:\n")
		for _, m := range lines {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	b.WriteString("\nPlease reply to the guest as soon as possible.")
	return b.String()
}

func (s *Service) handoffHTML(notice conversation.HandoffNotice, propertyName string) string {
	conv := notice.Conversation
	var b strings.Builder
	b.WriteString(`<div style="font-family: sans-serif; max-width: 600px;">`)
	fmt.Fprintf(&b, `<h2 style="color: #dc2626;">A guest at %s needs assistance</h2>`, html.EscapeString(propertyName))
	fmt.Fprintf(&b, `<p>Guest: <strong>%s</strong> (%s)<br>Channel: %s<br>`,
		html.EscapeString(guestName(conv.GuestName)), html.EscapeString(conv.GuestIdentifier), channelTitle(conv.Channel))
	if link := s.conversationLink(conv.ID); link != "" {
		fmt.Fprintf(&b, `Conversation: <a href="%s">View in Dashboard</a></p>`, html.EscapeString(link))
	} else {
		fmt.Fprintf(&b, `Conversation: %s</p>`, html.EscapeString(conv.ID))
	}
	fmt.Fprintf(&b, `<p><strong>Trigger:</strong><br>%s</p>`, html.EscapeString(notice.TriggerMessage))
	if lines := tail(notice.Transcript); len(lines) > 0 {
		b.WriteString(`<p><strong>Recent messages:</strong></p><ul>`)
		for _, m := range lines {
			fmt.Fprintf(&b, `<li><em>%s</em>: %s</li>`, html.EscapeString(string(m.Role)), html.EscapeString(m.Content))
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`<p>Please reply to the guest as soon as possible.</p></div>`)
	return b.String()
}

func (s *Service) conversationLink(conversationID string) string {
	if s.dashboardURL == "" || conversationID == "" {
		return ""
	}
	return s.dashboardURL + "/conversations/" + conversationID
}

func tail(messages []conversation.Message) []conversation.Message {
	if len(messages) > transcriptTail {
		return messages[len(messages)-transcriptTail:]
	}
	return messages
}

func guestName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown"
	}
	return name
}

func channelTitle(channel string) string {
	switch channel {
	case conversation.ChannelWhatsApp:
		return "WhatsApp"
	case conversation.ChannelEmail:
		return "Email"
	case conversation.ChannelWeb:
		return "Web Chat"
	case "":
		return "Unknown"
	default:
		return strings.ToUpper(channel[:1]) + channel[1:]
	}
}
