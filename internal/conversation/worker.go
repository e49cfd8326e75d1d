package conversation

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// MessageProcessor handles one inbound guest message. *Orchestrator satisfies it.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, in Inbound) (*Result, error)
}

// ReplyDeliverer sends a processed reply back over the guest's channel.
type ReplyDeliverer interface {
	Deliver(ctx context.Context, in Inbound, reply string) error
}

// troubleReply is sent when processing fails for a reason other than bad input.
const troubleReply = "Sorry, I'm having trouble responding right now. Please message us again in a moment.\n\n" +
	"Maaf, kami menghadapi masalah teknikal. Sila hantar mesej semula sebentar lagi."

const (
	defaultWorkerCount   = 4
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	deliverTimeout       = 20 * time.Second
)

// Worker consumes inbound messages from the queue. Messages are routed to a
// fixed shard by conversation key, and each shard runs serially, so one
// guest's messages never run concurrently.
type Worker struct {
	processor MessageProcessor
	queue     Queue
	delivery  ReplyDeliverer
	logger    *logging.Logger

	cfg    workerConfig
	shards []chan queueMessage
	wg     sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of shards.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker builds a worker. delivery may be nil when replies are returned
// synchronously elsewhere.
func NewWorker(processor MessageProcessor, queue Queue, delivery ReplyDeliverer, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	shards := make([]chan queueMessage, cfg.workers)
	for i := range shards {
		shards[i] = make(chan queueMessage, cfg.receiveBatchSize)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		delivery:  delivery,
		logger:    logger.Component("conversation_worker"),
		cfg:       cfg,
		shards:    shards,
	}
}

// Start launches the receive loop and shard goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i, shard := range w.shards {
		w.wg.Add(1)
		go w.runShard(ctx, i, shard)
	}
	w.wg.Add(1)
	go w.receive(ctx)
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) receive(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		for _, shard := range w.shards {
			close(shard)
		}
	}()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			payload, err := decodePayload(msg.Body)
			if err != nil {
				w.logger.Error("dropping undecodable inbound message", "error", err, "msg_id", msg.ID)
				w.deleteMessage(msg.ReceiptHandle)
				continue
			}
			select {
			case w.shards[w.shardFor(ConversationKey(payload.Inbound))] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(w.shards)))
}

func (w *Worker) runShard(ctx context.Context, shardID int, shard <-chan queueMessage) {
	defer w.wg.Done()
	w.logger.Debug("conversation shard started", "shard", shardID)
	for msg := range shard {
		w.handleMessage(ctx, msg)
	}
	w.logger.Debug("conversation shard stopped", "shard", shardID)
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	defer w.deleteMessage(msg.ReceiptHandle)

	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode inbound message", "error", err, "msg_id", msg.ID)
		return
	}
	in := payload.Inbound

	// Work already dequeued finishes even while shutting down.
	procCtx := context.WithoutCancel(ctx)
	result, err := w.processor.ProcessMessage(procCtx, in)
	if err != nil {
		w.logger.Error("inbound message failed",
			"error", err,
			"job_id", payload.ID,
			"channel", in.Channel,
			"property_id", in.PropertyID,
		)
		if errors.Is(err, ErrRejected) || errors.Is(err, property.ErrPropertyNotFound) || errors.Is(err, ErrInvalidInbound) {
			return
		}
		w.deliver(procCtx, in, troubleReply, payload.ID)
		return
	}

	w.logger.Debug("inbound message processed",
		"job_id", payload.ID,
		"conversation_id", result.ConversationID,
		"queue_latency_ms", time.Since(payload.EnqueuedAt).Milliseconds(),
	)
	w.deliver(procCtx, in, result.Reply, payload.ID)
}

func (w *Worker) deliver(ctx context.Context, in Inbound, reply, jobID string) {
	if w.delivery == nil || reply == "" {
		return
	}
	deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := w.delivery.Deliver(deliverCtx, in, reply); err != nil {
		w.logger.Error("failed to deliver reply", "error", err, "job_id", jobID, "channel", in.Channel)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound message", "error", err)
	}
}
