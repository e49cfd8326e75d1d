package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

type scriptedProcessor struct {
	mu       sync.Mutex
	inFlight map[string]int
	overlap  bool
	handled  []Inbound
	errFor   map[string]error
	delay    time.Duration
}

func newScriptedProcessor() *scriptedProcessor {
	return &scriptedProcessor{inFlight: map[string]int{}, errFor: map[string]error{}}
}

func (p *scriptedProcessor) ProcessMessage(_ context.Context, in Inbound) (*Result, error) {
	key := ConversationKey(in)
	p.mu.Lock()
	p.inFlight[key]++
	if p.inFlight[key] > 1 {
		p.overlap = true
	}
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight[key]--
	p.handled = append(p.handled, in)
	if err := p.errFor[in.Text]; err != nil {
		return nil, err
	}
	return &Result{Reply: "re: " + in.Text, ConversationID: key}, nil
}

func (p *scriptedProcessor) handledTexts(guest string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, in := range p.handled {
		if in.GuestIdentifier == guest {
			out = append(out, in.Text)
		}
	}
	return out
}

type delivery struct {
	in    Inbound
	reply string
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent []delivery
}

func (d *recordingDeliverer) Deliver(_ context.Context, in Inbound, reply string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, delivery{in: in, reply: reply})
	return nil
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *recordingDeliverer) replies() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]string{}
	for _, s := range d.sent {
		out[s.in.Text] = s.reply
	}
	return out
}

func runWorker(t *testing.T, processor MessageProcessor, deliverer ReplyDeliverer, inbound []Inbound, expectDeliveries int, opts ...WorkerOption) (*MemoryQueue, *recordingDeliverer) {
	t.Helper()

	queue := NewMemoryQueue(64)
	publisher := NewPublisher(queue, logging.Discard())
	for _, in := range inbound {
		if _, err := publisher.Enqueue(context.Background(), in); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	rec, _ := deliverer.(*recordingDeliverer)
	opts = append([]WorkerOption{WithReceiveWaitSeconds(0)}, opts...)
	worker := NewWorker(processor, queue, deliverer, logging.Discard(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for rec != nil && rec.count() < expectDeliveries && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Let any unexpected extra deliveries land before stopping.
	time.Sleep(20 * time.Millisecond)
	cancel()
	worker.Wait()
	return queue, rec
}

func TestWorkerDeliversReplies(t *testing.T) {
	processor := newScriptedProcessor()
	deliverer := &recordingDeliverer{}

	queue, rec := runWorker(t, processor, deliverer, []Inbound{
		{PropertyID: "p1", GuestIdentifier: "+6011", Channel: ChannelWhatsApp, Text: "hello"},
		{PropertyID: "p1", GuestIdentifier: "web-1", Channel: ChannelWeb, Text: "pool hours?"},
	}, 2)

	replies := rec.replies()
	if replies["hello"] != "re: hello" || replies["pool hours?"] != "re: pool hours?" {
		t.Fatalf("unexpected replies: %#v", replies)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected queue drained, %d left", queue.Len())
	}
}

func TestWorkerSerializesPerConversation(t *testing.T) {
	processor := newScriptedProcessor()
	processor.delay = 5 * time.Millisecond
	deliverer := &recordingDeliverer{}

	var inbound []Inbound
	for i := 0; i < 6; i++ {
		inbound = append(inbound,
			Inbound{PropertyID: "p1", GuestIdentifier: "alice", Channel: ChannelWeb, Text: fmt.Sprintf("a%d", i)},
			Inbound{PropertyID: "p1", GuestIdentifier: "bob", Channel: ChannelWeb, Text: fmt.Sprintf("b%d", i)},
		)
	}

	runWorker(t, processor, deliverer, inbound, len(inbound), WithWorkerCount(4), WithReceiveBatchSize(10))

	if processor.overlap {
		t.Fatalf("messages for one conversation ran concurrently")
	}
	got := processor.handledTexts("alice")
	want := []string{"a0", "a1", "a2", "a3", "a4", "a5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("alice processed out of order: %v", got)
	}
}

func TestWorkerFailureReplies(t *testing.T) {
	processor := newScriptedProcessor()
	processor.errFor["boom"] = errors.New("database unavailable")
	processor.errFor["inject"] = fmt.Errorf("conversation: sanitize: %w", ErrRejected)
	processor.errFor["ghost"] = fmt.Errorf("conversation: load property: %w", property.ErrPropertyNotFound)
	deliverer := &recordingDeliverer{}

	_, rec := runWorker(t, processor, deliverer, []Inbound{
		{PropertyID: "p1", GuestIdentifier: "g1", Channel: ChannelWeb, Text: "boom"},
		{PropertyID: "p1", GuestIdentifier: "g2", Channel: ChannelWeb, Text: "inject"},
		{PropertyID: "p1", GuestIdentifier: "g3", Channel: ChannelWeb, Text: "ghost"},
	}, 1)

	replies := rec.replies()
	if len(replies) != 1 {
		t.Fatalf("expected only the internal failure to be answered, got %#v", replies)
	}
	if replies["boom"] != troubleReply {
		t.Fatalf("expected trouble reply, got %q", replies["boom"])
	}
}

func TestConversationKeyShardsStable(t *testing.T) {
	worker := NewWorker(newScriptedProcessor(), NewMemoryQueue(1), nil, logging.Discard(), WithWorkerCount(8))
	key := ConversationKey(Inbound{PropertyID: "p1", GuestIdentifier: "+6011"})
	if key != "p1:+6011" {
		t.Fatalf("unexpected key %q", key)
	}
	first := worker.shardFor(key)
	for i := 0; i < 10; i++ {
		if worker.shardFor(key) != first {
			t.Fatalf("shard assignment changed")
		}
	}
}
