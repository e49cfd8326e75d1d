package leads

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/wolfman30/hotel-concierge-ai/internal/llm"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

const extractionPrompt = "Extract guest info from this hotel inquiry conversation. " +
	"Return ONLY a JSON object (no markdown) with keys: " +
	"guest_name (string or null), guest_email (string or null), " +
	"guest_phone (string or null), intent (one of: room_booking, " +
	"event, fb_inquiry, general), estimated_nights (number or null). " +
	"If info is not available, use null."

// Flag reasons, in precedence order.
const (
	ReasonKeyword   = "Keyword match (Event/Group)"
	ReasonLongStay  = "Long stay (>5 nights)"
	ReasonHighValue = "High estimated value"
)

var highValueKeywords = []string{"wedding", "group", "corporate", "event", "conference"}

// Generator produces model output. *llm.Chain satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) llm.Result
}

// TranscriptLine is one message of the conversation being mined.
type TranscriptLine struct {
	Role    string
	Content string
}

// ExtractInput carries everything the extractor needs about a conversation.
type ExtractInput struct {
	ConversationID  string
	PropertyID      string
	Transcript      []TranscriptLine
	LatestMessage   string
	Channel         string
	GuestIdentifier string
	ADR             float64
	IsAfterHours    bool
}

// extraction is the JSON shape the model is asked to return.
type extraction struct {
	GuestName       *string  `json:"guest_name"`
	GuestEmail      *string  `json:"guest_email"`
	GuestPhone      *string  `json:"guest_phone"`
	Intent          *string  `json:"intent"`
	EstimatedNights *float64 `json:"estimated_nights"`
}

// Extractor turns a conversation into a scored lead.
type Extractor struct {
	generator Generator
	logger    *logging.Logger
}

// NewExtractor creates an extractor backed by the given generator.
func NewExtractor(generator Generator, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{generator: generator, logger: logger.Component("lead_extractor")}
}

// Extract returns a scored lead, or nil when nothing usable was found.
// Model and parse failures are logged and yield nil; they are never errors.
func (e *Extractor) Extract(ctx context.Context, in ExtractInput) *Lead {
	if e == nil || e.generator == nil {
		return nil
	}

	result := e.generator.Generate(ctx, llm.Request{
		System:      extractionPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: formatTranscript(in.Transcript)}},
		MaxTokens:   150,
		Temperature: 0,
	})
	if result.FromTemplate() {
		e.logger.Warn("lead extraction skipped, no provider available", "conversation_id", in.ConversationID)
		return nil
	}

	var extracted extraction
	if err := json.Unmarshal([]byte(stripCodeFence(result.Text)), &extracted); err != nil {
		e.logger.Warn("lead extraction returned unparseable output",
			"conversation_id", in.ConversationID,
			"provider", result.Provider,
			"error", err,
		)
		return nil
	}

	lead := &Lead{
		ConversationID: in.ConversationID,
		PropertyID:     in.PropertyID,
		GuestName:      str(extracted.GuestName),
		GuestPhone:     str(extracted.GuestPhone),
		GuestEmail:     str(extracted.GuestEmail),
		Intent:         NormalizeIntent(str(extracted.Intent)),
		SourceChannel:  in.Channel,
		IsAfterHours:   in.IsAfterHours,
		Status:         StatusNew,
	}

	switch in.Channel {
	case "whatsapp":
		if lead.GuestPhone == "" {
			lead.GuestPhone = in.GuestIdentifier
		}
	case "email":
		if lead.GuestEmail == "" {
			lead.GuestEmail = in.GuestIdentifier
		}
	}

	if !lead.HasContact() {
		return nil
	}

	nights := 1.0
	if extracted.EstimatedNights != nil && *extracted.EstimatedNights > 0 {
		nights = *extracted.EstimatedNights
	}
	lead.EstimatedValue = roundCents(nights * in.ADR)
	lead.Priority, lead.FlagReason = Score(in.LatestMessage, nights, lead.EstimatedValue, in.ADR)

	return lead
}

// Score applies the priority rules. The first matching rule wins.
func Score(latestMessage string, nights, estimatedValue, adr float64) (priority, reason string) {
	lower := strings.ToLower(latestMessage)
	for _, kw := range highValueKeywords {
		if strings.Contains(lower, kw) {
			return PriorityHighValue, ReasonKeyword
		}
	}
	if nights > 5 {
		return PriorityHighValue, ReasonLongStay
	}
	if estimatedValue > adr*3 {
		return PriorityHighValue, ReasonHighValue
	}
	return PriorityStandard, ""
}

func formatTranscript(lines []TranscriptLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, line.Role+": "+line.Content)
	}
	return strings.Join(parts, "\n")
}

// stripCodeFence removes a ``` or ```json wrapper around model output.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	_, body, found := strings.Cut(raw, "\n")
	if !found {
		return ""
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
