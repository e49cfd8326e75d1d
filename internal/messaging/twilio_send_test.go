package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

func newTestSender(t *testing.T, handler http.HandlerFunc, breakers Breaker) *TwilioWhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwilioWhatsAppSender(TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+60380001234",
		BaseURL:    srv.URL,
	}, breakers, logging.Discard())
}

func TestNewTwilioWhatsAppSenderRequiresCredentials(t *testing.T) {
	if NewTwilioWhatsAppSender(TwilioConfig{AccountSID: "AC123"}, nil, nil) != nil {
		t.Fatalf("expected nil sender without auth token")
	}
}

func TestSendWhatsAppPostsForm(t *testing.T) {
	var got *http.Request
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}, nil)

	if err := sender.SendWhatsApp(context.Background(), "+60123456789", "", "Hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.URL.Path != "/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected path %s", got.URL.Path)
	}
	if got.PostForm.Get("To") != "whatsapp:+60123456789" || got.PostForm.Get("From") != "whatsapp:+60380001234" {
		t.Fatalf("expected whatsapp-prefixed addresses, got %v", got.PostForm)
	}
	user, pass, ok := got.BasicAuth()
	if !ok || user != "AC123" || pass != "token" {
		t.Fatalf("expected basic auth")
	}
}

func TestSendWhatsAppRetriesServerErrors(t *testing.T) {
	var calls int32
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}, nil)

	if err := sender.SendWhatsApp(context.Background(), "+6011", "+6012", "Hi"); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendWhatsAppDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	breakers := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}, breakers)

	err := sender.SendWhatsApp(context.Background(), "bad", "+6012", "Hi")
	if err == nil || calls != 1 {
		t.Fatalf("expected one failed attempt, got %d calls err=%v", calls, err)
	}
	if !breakers.CanExecute(BreakerTwilio) {
		t.Fatalf("a rejected request should not open the breaker")
	}
}

func TestSendWhatsAppOpensBreaker(t *testing.T) {
	var calls int32
	breakers := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, breakers)

	if err := sender.SendWhatsApp(context.Background(), "+6011", "+6012", "Hi"); err == nil {
		t.Fatalf("expected failure")
	}
	err := sender.SendWhatsApp(context.Background(), "+6011", "+6012", "Hi")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("open circuit must short-circuit, got %d calls", calls)
	}
}

func TestSendWhatsAppBadRequestClosesHalfOpenBreaker(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	breakers := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		breaker.WithClock(func() time.Time { return now }),
		breaker.WithLogger(logging.Discard()),
	)
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}, breakers)

	breakers.RecordFailure(BreakerTwilio)
	now = now.Add(time.Minute)

	if err := sender.SendWhatsApp(context.Background(), "bad", "+6012", "Hi"); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected the probe to reach twilio and fail, got %v", err)
	}
	if got := breakers.Status(BreakerTwilio).State; got != breaker.StateClosed {
		t.Fatalf("expected breaker closed after twilio answered, got %s", got)
	}
	if !breakers.CanExecute(BreakerTwilio) {
		t.Fatalf("expected later deliveries to be allowed")
	}
}

func TestFormatTwilioError(t *testing.T) {
	if got := formatTwilioError(400, []byte(`{"code":21211,"message":"bad number"}`)); got != "status 400 code 21211: bad number" {
		t.Fatalf("unexpected %q", got)
	}
	if got := formatTwilioError(502, nil); got != "status 502" {
		t.Fatalf("unexpected %q", got)
	}
}
