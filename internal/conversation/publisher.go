package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// Publisher enqueues inbound guest messages for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue publishes an inbound message and returns its job id.
func (p *Publisher) Enqueue(ctx context.Context, in Inbound) (string, error) {
	if in.PropertyID == "" || in.GuestIdentifier == "" || in.Channel == "" {
		return "", ErrInvalidInbound
	}

	payload, body, err := encodePayload(queuePayload{Inbound: in})
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body, ConversationKey(in)); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}

	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "channel", in.Channel, "property_id", in.PropertyID)
	return payload.ID, nil
}
