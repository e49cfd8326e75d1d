package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

var twilioSendTracer = otel.Tracer("concierge.internal.messaging.twilio_send")

// BreakerTwilio is the breaker service name for Twilio.
const BreakerTwilio = "twilio"

const defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"

// ErrCircuitOpen is returned when the Twilio breaker is open.
var ErrCircuitOpen = errors.New("messaging: twilio circuit open")

// Breaker guards calls to Twilio. *breaker.Registry satisfies it.
type Breaker interface {
	CanExecute(service string) bool
	RecordSuccess(service string)
	RecordFailure(service string)
}

// TwilioConfig holds Twilio credentials. BaseURL overrides the API root.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

// TwilioWhatsAppSender posts WhatsApp messages using Twilio's REST API.
type TwilioWhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	breakers   Breaker
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioWhatsAppSender builds a sender with sane defaults. It returns nil
// when credentials are missing.
func NewTwilioWhatsAppSender(cfg TwilioConfig, breakers Breaker, logger *logging.Logger) *TwilioWhatsAppSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioWhatsAppSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    baseURL,
		breakers:   breakers,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// whatsappAddress adds Twilio's channel prefix.
func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendWhatsApp dispatches a single message, retrying transient failures.
// An empty from uses the configured default number.
func (s *TwilioWhatsAppSender) SendWhatsApp(ctx context.Context, to, from, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("messaging: to required")
	}
	if from == "" {
		from = s.from
	}
	if from == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}
	if s.breakers != nil && !s.breakers.CanExecute(BreakerTwilio) {
		return ErrCircuitOpen
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.channel", "whatsapp"))

	payload := url.Values{}
	payload.Set("To", whatsappAddress(to))
	payload.Set("From", whatsappAddress(from))
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	transient := true
	reachable := false
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			transient = false
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if s.breakers != nil {
					s.breakers.RecordSuccess(BreakerTwilio)
				}
				s.logger.Info("twilio whatsapp sent", "to", to, "sid", messageSID(respBody))
				return nil
			}
			lastErr = fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors. Twilio answered, so
			// the endpoint counts as healthy.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				transient = false
				reachable = true
				break
			}
		}

		if attempt < 3 {
			if err := sleepContext(ctx, time.Duration(200+rand.Intn(300))*time.Millisecond); err != nil {
				lastErr = err
				break
			}
		}
	}

	if s.breakers != nil {
		switch {
		case transient:
			s.breakers.RecordFailure(BreakerTwilio)
		case reachable:
			s.breakers.RecordSuccess(BreakerTwilio)
		}
	}
	span.RecordError(lastErr)
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func messageSID(body []byte) string {
	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.SID
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
