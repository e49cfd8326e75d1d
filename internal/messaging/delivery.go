// Package messaging delivers concierge replies to guests over their channel.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/notify"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// WhatsAppSender sends a WhatsApp text. *TwilioWhatsAppSender satisfies it.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, from, body string) error
}

// OutboundRecorder counts delivery attempts. *metrics.MessagingMetrics satisfies it.
type OutboundRecorder interface {
	ObserveOutbound(channel, status string)
}

// Dispatcher routes a reply to the sender for its channel. Web chat replies
// are returned synchronously by the widget endpoint and are not sent here.
type Dispatcher struct {
	properties property.Lookup
	whatsapp   WhatsAppSender
	email      notify.EmailSender
	recorder   OutboundRecorder
	logger     *logging.Logger
}

// NewDispatcher wires the channel senders. Nil senders log the reply
// instead of sending it.
func NewDispatcher(properties property.Lookup, whatsapp WhatsAppSender, email notify.EmailSender, logger *logging.Logger) *Dispatcher {
	if properties == nil {
		panic("messaging: property lookup cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		properties: properties,
		whatsapp:   whatsapp,
		email:      email,
		logger:     logger.Component("delivery"),
	}
}

// WithRecorder wires outbound metrics.
func (d *Dispatcher) WithRecorder(r OutboundRecorder) *Dispatcher {
	d.recorder = r
	return d
}

var _ conversation.ReplyDeliverer = (*Dispatcher)(nil)

// Deliver implements conversation.ReplyDeliverer.
func (d *Dispatcher) Deliver(ctx context.Context, in conversation.Inbound, reply string) error {
	if strings.TrimSpace(reply) == "" {
		return nil
	}
	sent, err := d.deliver(ctx, in, reply)
	if d.recorder != nil && in.Channel != conversation.ChannelWeb {
		switch {
		case err != nil:
			d.recorder.ObserveOutbound(in.Channel, "error")
		case sent:
			d.recorder.ObserveOutbound(in.Channel, "sent")
		default:
			d.recorder.ObserveOutbound(in.Channel, "skipped")
		}
	}
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, in conversation.Inbound, reply string) (bool, error) {
	prop, err := d.properties.Get(ctx, in.PropertyID)
	if err != nil {
		// Deliver with defaults; the guest still gets an answer.
		d.logger.Warn("property lookup failed during delivery", "property_id", in.PropertyID, "error", err)
		prop = &property.Config{ID: in.PropertyID}
	}

	switch in.Channel {
	case conversation.ChannelWhatsApp:
		if d.whatsapp == nil {
			d.logger.Info("whatsapp sender not configured, reply not sent", "to", in.GuestIdentifier, "preview", preview(reply))
			return false, nil
		}
		return true, d.whatsapp.SendWhatsApp(ctx, in.GuestIdentifier, prop.WhatsAppNumberID, reply)

	case conversation.ChannelEmail:
		if d.email == nil {
			d.logger.Info("email sender not configured, reply not sent", "to", in.GuestIdentifier, "preview", preview(reply))
			return false, nil
		}
		msg, err := notify.GuestReply(in.GuestIdentifier, in.Subject, prop.Name, reply, plainText(reply))
		if err != nil {
			return false, err
		}
		msg.ToName = in.GuestNameHint
		return true, d.email.Send(ctx, msg)

	case conversation.ChannelWeb:
		return false, nil

	default:
		return false, errors.New("messaging: unsupported channel " + in.Channel)
	}
}

func plainText(html string) string {
	text := strings.NewReplacer("<br>", "\n", "</p><p>", "\n\n").Replace(html)
	return strings.TrimSpace(htmlTag.ReplaceAllString(text, ""))
}

func preview(s string) string {
	if r := []rune(s); len(r) > 80 {
		return string(r[:80])
	}
	return s
}
