package leads

import "errors"

var (
	// ErrMissingContact is returned when a lead has no name, phone or email.
	ErrMissingContact = errors.New("leads: name, phone or email is required")

	// ErrMissingConversation is returned when a lead is not tied to a conversation.
	ErrMissingConversation = errors.New("leads: conversation id is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrLeadExists is returned when the conversation already produced a lead.
	ErrLeadExists = errors.New("leads: lead already exists for conversation")
)
