package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries inbound messages from the webhooks to the worker.
// MemoryQueue and SQSQueue implement it.
type Queue interface {
	Send(ctx context.Context, body, groupKey string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// queuePayload is the wire form of an inbound guest message waiting for a worker.
type queuePayload struct {
	ID         string    `json:"id"`
	Inbound    Inbound   `json:"inbound"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ConversationKey identifies the guest thread an inbound message belongs to.
// Messages sharing a key are processed one at a time.
func ConversationKey(in Inbound) string {
	return in.PropertyID + ":" + in.GuestIdentifier
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	return payload, nil
}
