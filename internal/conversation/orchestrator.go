package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/hotel-concierge-ai/internal/formatter"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
	"github.com/wolfman30/hotel-concierge-ai/internal/leads"
	"github.com/wolfman30/hotel-concierge-ai/internal/llm"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/internal/sanitize"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// ErrRejected is returned when the sanitizer refuses a guest message.
var ErrRejected = sanitize.ErrRejected

const (
	knowledgeLimit   = 5
	replyMaxTokens   = 300
	replyTemperature = 0.7
)

// KnowledgeSearcher finds property documents relevant to a query.
type KnowledgeSearcher interface {
	Search(ctx context.Context, propertyID, query string, limit int) []knowledge.Document
}

// Generator produces a reply. *llm.Chain satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) llm.Result
}

// LeadExtractor mines a conversation for a scored lead.
type LeadExtractor interface {
	Extract(ctx context.Context, in leads.ExtractInput) *leads.Lead
}

// HandoffNotice tells staff a guest asked for a person.
type HandoffNotice struct {
	Property       *property.Config
	Conversation   Conversation
	Transcript     []Message
	TriggerMessage string
}

// HandoffNotifier delivers handoff notices to property staff.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, notice HandoffNotice) error
}

// Recorder receives per-message observations.
type Recorder interface {
	ObserveProcessed(channel, mode string, seconds float64)
	ObserveLead(priority string)
	ObserveHandoff(channel string)
	ObserveRejected(channel string)
}

// Orchestrator turns an inbound guest message into a reply.
type Orchestrator struct {
	store      Store
	properties property.Lookup
	knowledge  KnowledgeSearcher
	generator  Generator
	extractor  LeadExtractor
	leads      leads.Repository
	intents    *IntentRules
	handoff    HandoffNotifier
	recorder   Recorder
	sanitize   func(string) (string, error)
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithIntentRules replaces the built-in keyword rules.
func WithIntentRules(rules *IntentRules) Option {
	return func(o *Orchestrator) {
		if rules != nil {
			o.intents = rules
		}
	}
}

// WithHandoffNotifier wires a staff notifier for handoff transitions.
func WithHandoffNotifier(n HandoffNotifier) Option {
	return func(o *Orchestrator) {
		o.handoff = n
	}
}

// WithRecorder wires metrics.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Deps groups the orchestrator's required collaborators.
type Deps struct {
	Store      Store
	Properties property.Lookup
	Knowledge  KnowledgeSearcher
	Generator  Generator
	Extractor  LeadExtractor
	Leads      leads.Repository
}

// NewOrchestrator wires an orchestrator. Store, Properties and Generator are required.
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	if deps.Store == nil {
		panic("conversation: store cannot be nil")
	}
	if deps.Properties == nil {
		panic("conversation: property lookup cannot be nil")
	}
	if deps.Generator == nil {
		panic("conversation: generator cannot be nil")
	}
	o := &Orchestrator{
		store:      deps.Store,
		properties: deps.Properties,
		knowledge:  deps.Knowledge,
		generator:  deps.Generator,
		extractor:  deps.Extractor,
		leads:      deps.Leads,
		intents:    DefaultIntentRules(),
		sanitize:   sanitize.Guest,
		logger:     logging.Default(),
		tracer:     otel.Tracer("concierge.internal.conversation"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Component("orchestrator")
	return o
}

// ProcessMessage runs one guest turn end to end. Rejected input returns
// ErrRejected and an unknown property returns property.ErrPropertyNotFound.
// Persistence failures are returned; model, retrieval and extraction
// failures are absorbed.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in Inbound) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "conversation.process", trace.WithAttributes(
		attribute.String("conversation.channel", in.Channel),
		attribute.String("property.id", in.PropertyID),
	))
	defer span.End()
	started := time.Now()

	if strings.TrimSpace(in.PropertyID) == "" || strings.TrimSpace(in.GuestIdentifier) == "" || strings.TrimSpace(in.Channel) == "" {
		return nil, ErrInvalidInbound
	}

	text, err := o.sanitize(in.Text)
	if err != nil {
		o.observeRejected(in.Channel)
		o.logger.Warn("guest message rejected", "property_id", in.PropertyID, "channel", in.Channel, "error", err)
		span.SetStatus(codes.Error, "rejected")
		return nil, fmt.Errorf("conversation: sanitize: %w", err)
	}

	prop, err := o.properties.Get(ctx, in.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load property: %w", err)
	}

	now := o.now()
	conv, err := o.store.GetOrCreate(ctx, &Conversation{
		PropertyID:      in.PropertyID,
		Channel:         in.Channel,
		GuestIdentifier: in.GuestIdentifier,
		GuestName:       strings.TrimSpace(in.GuestNameHint),
		Status:          StatusActive,
		Mode:            ModeConcierge,
		IsAfterHours:    prop.IsAfterHours(now),
		StartedAt:       now,
		LastMessageAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: get or create: %w", err)
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	conv.LastMessageAt = now
	conv.MessageCount++
	if hint := strings.TrimSpace(in.GuestNameHint); hint != "" && conv.GuestName == "" {
		conv.GuestName = hint
	}

	if err := o.store.AppendMessage(ctx, &Message{
		ConversationID: conv.ID,
		Role:           RoleGuest,
		Content:        text,
		Metadata:       MessageMetadata{Channel: in.Channel},
		SentAt:         now,
	}); err != nil {
		return nil, fmt.Errorf("conversation: append guest message: %w", err)
	}

	previousMode := conv.Mode
	o.intents.ApplyIntent(conv, text)
	enteredHandoff := conv.Mode == ModeHandoff && previousMode != ModeHandoff

	var docs []knowledge.Document
	if o.knowledge != nil {
		docs = o.knowledge.Search(ctx, conv.PropertyID, text, knowledgeLimit)
	}

	recent, err := o.store.RecentMessages(ctx, conv.ID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}

	genStart := time.Now()
	reply := o.generator.Generate(ctx, llm.Request{
		System:      BuildSystemPrompt(prop, conv, knowledge.FormatContext(docs)),
		Messages:    BuildHistory(recent),
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	responseTimeMS := time.Since(genStart).Milliseconds()

	safeText, leaks := sanitize.Reply(reply.Text, llm.FallbackText)
	if len(leaks) > 0 {
		o.logger.Warn("generated reply leaked internal details", "conversation_id", conv.ID, "provider", reply.Provider, "reasons", leaks)
	}
	replyText := formatter.Format(safeText, conv.Channel)
	// History keeps the unformatted reply; it is fed back to the model.
	if err := o.store.AppendMessage(ctx, &Message{
		ConversationID: conv.ID,
		Role:           RoleAI,
		Content:        safeText,
		Metadata: MessageMetadata{
			ResponseTimeMS: responseTimeMS,
			TokensUsed:     reply.Usage.TotalTokens,
			Provider:       reply.Provider,
			Mode:           conv.Mode,
			Channel:        conv.Channel,
		},
		SentAt: o.now(),
	}); err != nil {
		return nil, fmt.Errorf("conversation: append reply: %w", err)
	}

	leadCreated, err := o.captureLead(ctx, conv, prop, text)
	if err != nil {
		return nil, err
	}

	if conv.Mode == ModeHandoff {
		conv.Status = StatusHandedOff
	}

	if err := o.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: save: %w", err)
	}

	if enteredHandoff {
		o.notifyHandoff(ctx, prop, conv, text)
	}

	if o.recorder != nil {
		o.recorder.ObserveProcessed(conv.Channel, string(conv.Mode), time.Since(started).Seconds())
	}
	o.logger.Info("guest message processed",
		"conversation_id", conv.ID,
		"property_id", conv.PropertyID,
		"channel", conv.Channel,
		"mode", conv.Mode,
		"provider", reply.Provider,
		"response_time_ms", responseTimeMS,
		"lead_created", leadCreated,
	)

	return &Result{
		Reply:          replyText,
		ConversationID: conv.ID,
		Mode:           conv.Mode,
		IsAfterHours:   conv.IsAfterHours,
		ResponseTimeMS: responseTimeMS,
		LeadCreated:    leadCreated,
		Provider:       reply.Provider,
	}, nil
}

// captureLead runs extraction while the conversation is in lead capture and
// has no lead yet. Only the final insert can fail the turn.
func (o *Orchestrator) captureLead(ctx context.Context, conv *Conversation, prop *property.Config, latest string) (bool, error) {
	if conv.Mode != ModeLeadCapture || o.extractor == nil || o.leads == nil {
		return false, nil
	}

	if _, err := o.leads.GetByConversation(ctx, conv.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, leads.ErrLeadNotFound) {
		o.logger.Warn("lead lookup failed, skipping extraction", "conversation_id", conv.ID, "error", err)
		return false, nil
	}

	transcript, err := o.store.AllMessages(ctx, conv.ID)
	if err != nil {
		o.logger.Warn("transcript load failed, skipping extraction", "conversation_id", conv.ID, "error", err)
		return false, nil
	}
	lines := make([]leads.TranscriptLine, 0, len(transcript))
	for _, m := range transcript {
		lines = append(lines, leads.TranscriptLine{Role: string(m.Role), Content: m.Content})
	}

	lead := o.extractor.Extract(ctx, leads.ExtractInput{
		ConversationID:  conv.ID,
		PropertyID:      conv.PropertyID,
		Transcript:      lines,
		LatestMessage:   latest,
		Channel:         conv.Channel,
		GuestIdentifier: conv.GuestIdentifier,
		ADR:             prop.ADR,
		IsAfterHours:    conv.IsAfterHours,
	})
	if lead == nil {
		return false, nil
	}

	created, err := o.leads.Create(ctx, lead)
	if errors.Is(err, leads.ErrLeadExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: create lead: %w", err)
	}

	if created.GuestName != "" {
		conv.GuestName = created.GuestName
	}
	if o.recorder != nil {
		o.recorder.ObserveLead(created.Priority)
	}
	o.logger.Info("lead captured",
		"conversation_id", conv.ID,
		"lead_id", created.ID,
		"priority", created.Priority,
		"flag_reason", created.FlagReason,
	)
	return true, nil
}

func (o *Orchestrator) notifyHandoff(ctx context.Context, prop *property.Config, conv *Conversation, trigger string) {
	if o.recorder != nil {
		o.recorder.ObserveHandoff(conv.Channel)
	}
	if o.handoff == nil {
		return
	}
	transcript, err := o.store.AllMessages(ctx, conv.ID)
	if err != nil {
		o.logger.Warn("handoff transcript load failed", "conversation_id", conv.ID, "error", err)
	}
	if err := o.handoff.NotifyHandoff(ctx, HandoffNotice{
		Property:       prop,
		Conversation:   *conv,
		Transcript:     transcript,
		TriggerMessage: trigger,
	}); err != nil {
		o.logger.Warn("handoff notification failed", "conversation_id", conv.ID, "error", err)
	}
}

func (o *Orchestrator) observeRejected(channel string) {
	if o.recorder != nil {
		o.recorder.ObserveRejected(channel)
	}
}
