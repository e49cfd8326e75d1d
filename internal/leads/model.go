package leads

import (
	"strings"
	"time"
)

// Intent values the extractor may assign.
const (
	IntentRoomBooking = "room_booking"
	IntentEvent       = "event"
	IntentFBInquiry   = "fb_inquiry"
	IntentGeneral     = "general"
)

// Priority values.
const (
	PriorityStandard  = "standard"
	PriorityHighValue = "high_value"
)

// StatusNew is the status every captured lead starts in.
const StatusNew = "new"

// Lead is a sales opportunity captured from a guest conversation.
type Lead struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PropertyID     string    `json:"property_id"`
	GuestName      string    `json:"guest_name,omitempty"`
	GuestPhone     string    `json:"guest_phone,omitempty"`
	GuestEmail     string    `json:"guest_email,omitempty"`
	Intent         string    `json:"intent"`
	EstimatedValue float64   `json:"estimated_value"`
	Priority       string    `json:"priority"`
	FlagReason     string    `json:"flag_reason,omitempty"`
	SourceChannel  string    `json:"source_channel"`
	IsAfterHours   bool      `json:"is_after_hours"`
	Status         string    `json:"status"`
	CapturedAt     time.Time `json:"captured_at"`
}

// HasContact reports whether the lead can be followed up.
func (l *Lead) HasContact() bool {
	return strings.TrimSpace(l.GuestName) != "" ||
		strings.TrimSpace(l.GuestPhone) != "" ||
		strings.TrimSpace(l.GuestEmail) != ""
}

// Validate checks the lead before it is persisted.
func (l *Lead) Validate() error {
	if strings.TrimSpace(l.ConversationID) == "" {
		return ErrMissingConversation
	}
	if !l.HasContact() {
		return ErrMissingContact
	}
	return nil
}

// NormalizeIntent maps free-form model output onto the known intents.
func NormalizeIntent(intent string) string {
	switch strings.ToLower(strings.TrimSpace(intent)) {
	case IntentRoomBooking:
		return IntentRoomBooking
	case IntentEvent:
		return IntentEvent
	case IntentFBInquiry:
		return IntentFBInquiry
	default:
		return IntentGeneral
	}
}

// ListFilter narrows ListByProperty results.
type ListFilter struct {
	Priority string
	Limit    int
	Offset   int
}
