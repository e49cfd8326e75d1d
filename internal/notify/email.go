// Package notify sends email: guest replies on the email channel and
// staff alerts when a conversation is handed off.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// ErrCircuitOpen is returned when the email provider's breaker is open.
var ErrCircuitOpen = errors.New("notify: email provider circuit open")

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SES) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Breaker guards calls to an email provider. *breaker.Registry satisfies it.
type Breaker interface {
	CanExecute(service string) bool
	RecordSuccess(service string)
	RecordFailure(service string)
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	CC      string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    sendgridClient
	breakers  Breaker
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// BreakerSendGrid is the breaker service name for SendGrid.
const BreakerSendGrid = "sendgrid"

// NewSendGridSender creates a new SendGrid email sender. It returns nil when
// no API key is configured.
func NewSendGridSender(cfg SendGridConfig, breakers Breaker, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, breakers, logger)
}

func newSendGridSender(client sendgridClient, cfg SendGridConfig, breakers Breaker, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Concierge"
	}
	return &SendGridSender{
		client:    client,
		breakers:  breakers,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if s.breakers != nil && !s.breakers.CanExecute(BreakerSendGrid) {
		return ErrCircuitOpen
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)
	if msg.CC != "" && len(message.Personalizations) > 0 {
		message.Personalizations[0].AddCCs(mail.NewEmail("", msg.CC))
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.recordFailure()
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}

	if response.StatusCode >= 400 {
		// 4xx other than throttling is a bad request, not an outage.
		if response.StatusCode >= 500 || response.StatusCode == 429 {
			s.recordFailure()
		} else if s.breakers != nil {
			s.breakers.RecordSuccess(BreakerSendGrid)
		}
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	if s.breakers != nil {
		s.breakers.RecordSuccess(BreakerSendGrid)
	}
	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

func (s *SendGridSender) recordFailure() {
	if s.breakers != nil {
		s.breakers.RecordFailure(BreakerSendGrid)
	}
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}
