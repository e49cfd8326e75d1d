package whatsapp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}

	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload is the URL followed by every key/value pair in key order.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest is an inbound WhatsApp message as posted by Twilio.
type TwilioWebhookRequest struct {
	MessageSid  string
	AccountSid  string
	From        string
	To          string
	Body        string
	ProfileName string
	NumMedia    string
}

// ParseTwilioWebhook parses a Twilio webhook request. From and To keep
// Twilio's "whatsapp:" prefix; see StripPrefix.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	return &TwilioWebhookRequest{
		MessageSid:  r.FormValue("MessageSid"),
		AccountSid:  r.FormValue("AccountSid"),
		From:        r.FormValue("From"),
		To:          r.FormValue("To"),
		Body:        r.FormValue("Body"),
		ProfileName: r.FormValue("ProfileName"),
		NumMedia:    r.FormValue("NumMedia"),
	}, nil
}

// StripPrefix removes Twilio's "whatsapp:" address prefix.
func StripPrefix(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), "whatsapp:")
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
