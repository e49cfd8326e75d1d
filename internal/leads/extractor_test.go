package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/internal/llm"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

type fakeGenerator struct {
	result llm.Result
	last   llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) llm.Result {
	f.last = req
	return f.result
}

func newTestExtractor(text, provider string) (*Extractor, *fakeGenerator) {
	gen := &fakeGenerator{result: llm.Result{Text: text, Provider: provider}}
	return NewExtractor(gen, logging.Discard()), gen
}

func baseInput() ExtractInput {
	return ExtractInput{
		ConversationID: "conv-1",
		PropertyID:     "prop-1",
		Transcript: []TranscriptLine{
			{Role: "guest", Content: "Hi, do you have rooms for 2 nights?"},
			{Role: "ai", Content: "We do! May I have your name?"},
			{Role: "guest", Content: "I'm Aisyah"},
		},
		LatestMessage:   "I'm Aisyah",
		Channel:         "web",
		GuestIdentifier: "session-abc",
		ADR:             230,
	}
}

func TestExtract_SendsTranscriptWithSmallBudget(t *testing.T) {
	extractor, gen := newTestExtractor(`{"guest_name":"Aisyah","intent":"room_booking","estimated_nights":2}`, "gemini")

	lead := extractor.Extract(context.Background(), baseInput())
	require.NotNil(t, lead)

	assert.Equal(t, int32(150), gen.last.MaxTokens)
	assert.Equal(t, float32(0), gen.last.Temperature)
	require.Len(t, gen.last.Messages, 1)
	assert.Equal(t, "guest: Hi, do you have rooms for 2 nights?\nai: We do! May I have your name?\nguest: I'm Aisyah", gen.last.Messages[0].Content)

	assert.Equal(t, "Aisyah", lead.GuestName)
	assert.Equal(t, IntentRoomBooking, lead.Intent)
	assert.Equal(t, 460.0, lead.EstimatedValue)
	assert.Equal(t, PriorityStandard, lead.Priority)
	assert.Empty(t, lead.FlagReason)
	assert.Equal(t, StatusNew, lead.Status)
	assert.Equal(t, "web", lead.SourceChannel)
}

func TestExtract_StripsCodeFence(t *testing.T) {
	for _, raw := range []string{
		"```json\n{\"guest_email\":\"tan@example.com\"}\n```",
		"```\n{\"guest_email\":\"tan@example.com\"}\n```",
	} {
		extractor, _ := newTestExtractor(raw, "openai")
		lead := extractor.Extract(context.Background(), baseInput())
		require.NotNil(t, lead, raw)
		assert.Equal(t, "tan@example.com", lead.GuestEmail)
		assert.Equal(t, IntentGeneral, lead.Intent)
		assert.Equal(t, 230.0, lead.EstimatedValue)
	}
}

func TestExtract_ParseFailureYieldsNoLead(t *testing.T) {
	extractor, _ := newTestExtractor("Sure! The guest is Aisyah.", "anthropic")
	assert.Nil(t, extractor.Extract(context.Background(), baseInput()))
}

func TestExtract_TemplateResultYieldsNoLead(t *testing.T) {
	extractor, _ := newTestExtractor(llm.FallbackText, llm.TemplateProvider)
	in := baseInput()
	in.Channel = "whatsapp"
	in.GuestIdentifier = "+60123456789"
	assert.Nil(t, extractor.Extract(context.Background(), in))
}

func TestExtract_AcceptanceGate(t *testing.T) {
	empty := `{"guest_name":null,"guest_phone":null,"guest_email":null,"intent":"room_booking","estimated_nights":null}`

	t.Run("web session token is not a contact", func(t *testing.T) {
		extractor, _ := newTestExtractor(empty, "gemini")
		assert.Nil(t, extractor.Extract(context.Background(), baseInput()))
	})

	t.Run("whatsapp sender backfills phone", func(t *testing.T) {
		extractor, _ := newTestExtractor(empty, "gemini")
		in := baseInput()
		in.Channel = "whatsapp"
		in.GuestIdentifier = "+60123456789"
		lead := extractor.Extract(context.Background(), in)
		require.NotNil(t, lead)
		assert.Equal(t, "+60123456789", lead.GuestPhone)
		assert.Empty(t, lead.GuestEmail)
	})

	t.Run("email sender backfills email", func(t *testing.T) {
		extractor, _ := newTestExtractor(empty, "gemini")
		in := baseInput()
		in.Channel = "email"
		in.GuestIdentifier = "guest@example.com"
		lead := extractor.Extract(context.Background(), in)
		require.NotNil(t, lead)
		assert.Equal(t, "guest@example.com", lead.GuestEmail)
	})

	t.Run("extracted phone wins over sender", func(t *testing.T) {
		extractor, _ := newTestExtractor(`{"guest_phone":"+6019999"}`, "gemini")
		in := baseInput()
		in.Channel = "whatsapp"
		in.GuestIdentifier = "+60123456789"
		lead := extractor.Extract(context.Background(), in)
		require.NotNil(t, lead)
		assert.Equal(t, "+6019999", lead.GuestPhone)
	})
}

func TestExtract_LongStayValuation(t *testing.T) {
	extractor, _ := newTestExtractor(`{"guest_name":"Tan","estimated_nights":7}`, "gemini")
	lead := extractor.Extract(context.Background(), baseInput())
	require.NotNil(t, lead)
	assert.Equal(t, 1610.0, lead.EstimatedValue)
	assert.Equal(t, PriorityHighValue, lead.Priority)
	assert.Equal(t, ReasonLongStay, lead.FlagReason)
}

func TestScorePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		nights     float64
		value      float64
		adr        float64
		wantPrio   string
		wantReason string
	}{
		{"keyword beats long stay", "Planning our WEDDING reception", 7, 1610, 230, PriorityHighValue, ReasonKeyword},
		{"long stay", "Need a room", 6, 1380, 230, PriorityHighValue, ReasonLongStay},
		{"five nights is not long", "Need a room", 5, 1150, 230, PriorityHighValue, ReasonHighValue},
		{"value above three times adr", "Need a room", 4, 920, 230, PriorityHighValue, ReasonHighValue},
		{"three nights is standard", "Need a room", 3, 690, 230, PriorityStandard, ""},
		{"corporate keyword", "corporate rate please", 1, 230, 230, PriorityHighValue, ReasonKeyword},
		{"one night", "Is breakfast included?", 1, 230, 230, PriorityStandard, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prio, reason := Score(tt.message, tt.nights, tt.value, tt.adr)
			assert.Equal(t, tt.wantPrio, prio)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestNormalizeIntent(t *testing.T) {
	assert.Equal(t, IntentEvent, NormalizeIntent(" Event "))
	assert.Equal(t, IntentFBInquiry, NormalizeIntent("fb_inquiry"))
	assert.Equal(t, IntentGeneral, NormalizeIntent("spa_booking"))
	assert.Equal(t, IntentGeneral, NormalizeIntent(""))
}

func TestExtract_WithChain(t *testing.T) {
	// A real chain with no providers serves the template, which never becomes a lead.
	chain := llm.NewChain("extraction", breaker.NewRegistry(breaker.Settings{FailureThreshold: 3, RecoveryTimeout: time.Minute}), nil)
	extractor := NewExtractor(chain, logging.Discard())
	in := baseInput()
	in.Channel = "whatsapp"
	in.GuestIdentifier = "+60123456789"
	assert.Nil(t, extractor.Extract(context.Background(), in))
}
