package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/messaging"
	"github.com/wolfman30/hotel-concierge-ai/internal/notify"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// memoryQueueBuffer bounds the in-process queue used in development.
const memoryQueueBuffer = 1024

// Breakers is the breaker surface the outbound senders share.
type Breakers interface {
	CanExecute(service string) bool
	RecordSuccess(service string)
	RecordFailure(service string)
}

// BuildEmailSender selects SendGrid or SES per EMAIL_PROVIDER and falls back
// to the logging stub when the chosen provider is not configured.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, breakers Breakers, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, breakers, logger), "ses"
		}
		logger.Warn("ses email selected but SES_FROM_EMAIL or aws config missing; using stub")
	default:
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, breakers, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("sendgrid not configured; using stub email sender")
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildWhatsAppSender returns the Twilio sender, or nil when Twilio
// credentials are missing. The nil is untyped so callers can compare it.
func BuildWhatsAppSender(cfg *appconfig.Config, breakers Breakers, logger *logging.Logger) messaging.WhatsAppSender {
	sender := messaging.NewTwilioWhatsAppSender(messaging.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioWhatsAppFrom,
	}, breakers, logger)
	if sender == nil {
		return nil
	}
	return sender
}

// BuildQueue returns the in-process queue or SQS per USE_MEMORY_QUEUE.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (conversation.Queue, error) {
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(memoryQueueBuffer), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config is required for sqs")
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.ConversationQueueURL), nil
}
