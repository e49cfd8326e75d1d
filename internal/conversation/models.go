package conversation

import (
	"errors"
	"time"
)

// Mode is the behavioural mode of the assistant within a conversation.
type Mode string

const (
	ModeConcierge   Mode = "concierge"
	ModeLeadCapture Mode = "lead_capture"
	ModeHandoff     Mode = "handoff"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusHandedOff Status = "handed_off"
	StatusResolved  Status = "resolved"
	StatusExpired   Status = "expired"
)

// Role identifies the author of a message.
type Role string

const (
	RoleGuest Role = "guest"
	RoleAI    Role = "ai"
	RoleStaff Role = "staff"
)

// Channels a guest can reach the property through.
const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

var (
	// ErrConversationNotFound is returned when a conversation lookup misses.
	ErrConversationNotFound = errors.New("conversation: not found")

	// ErrInvalidInbound is returned for inbound messages missing routing fields.
	ErrInvalidInbound = errors.New("conversation: property, guest and channel are required")
)

// Conversation is one guest thread with a property.
type Conversation struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	Channel         string     `json:"channel"`
	GuestIdentifier string     `json:"guest_identifier"`
	GuestName       string     `json:"guest_name,omitempty"`
	Status          Status     `json:"status"`
	Mode            Mode       `json:"mode"`
	IsAfterHours    bool       `json:"is_after_hours"`
	MessageCount    int        `json:"message_count"`
	StartedAt       time.Time  `json:"started_at"`
	LastMessageAt   time.Time  `json:"last_message_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// MessageMetadata is attached to stored messages.
type MessageMetadata struct {
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	TokensUsed     int32  `json:"tokens_used,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Mode           Mode   `json:"mode,omitempty"`
	Channel        string `json:"channel,omitempty"`
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Metadata       MessageMetadata `json:"metadata"`
	SentAt         time.Time       `json:"sent_at"`
}

// Inbound is a guest message as delivered by a channel.
type Inbound struct {
	PropertyID      string `json:"property_id"`
	GuestIdentifier string `json:"guest_identifier"`
	Channel         string `json:"channel"`
	Text            string `json:"text"`
	GuestNameHint   string `json:"guest_name,omitempty"`
	// Subject is the inbound email subject, used to thread the reply.
	Subject string `json:"subject,omitempty"`
}

// Result is what ProcessMessage hands back for persistence and delivery.
type Result struct {
	Reply          string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Mode           Mode   `json:"mode"`
	IsAfterHours   bool   `json:"is_after_hours"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	LeadCreated    bool   `json:"lead_created"`
	Provider       string `json:"provider"`
}
