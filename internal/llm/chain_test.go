package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
	last  Request
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.calls++
	s.last = req
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Text: s.text, Usage: TokenUsage{TotalTokens: 42}}, nil
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	templates int
}

func (r *countingRecorder) ObserveCall(provider, outcome string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[provider+":"+outcome]++
}

func (r *countingRecorder) ObserveTemplate(string) {
	r.mu.Lock()
	r.templates++
	r.mu.Unlock()
}

func newRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.Settings{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}, breaker.WithLogger(logging.Discard()))
}

func TestChainFirstSuccessWins(t *testing.T) {
	p1 := &stubProvider{name: "gemini", err: errors.New("boom")}
	p2 := &stubProvider{name: "openai", text: "  Hello from openai  "}
	p3 := &stubProvider{name: "anthropic", text: "never"}
	reg := newRegistry()
	chain := NewChain("chat", reg, []Provider{p1, p2, p3}, WithLogger(logging.Discard()))

	res := chain.Generate(context.Background(), Request{
		System:      "be nice",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens:   300,
		Temperature: 0.7,
	})

	if res.Provider != "openai" || res.Text != "Hello from openai" {
		t.Fatalf("unexpected result %+v", res)
	}
	if p3.Calls() != 0 {
		t.Fatalf("expected third provider not to be called")
	}
	if p2.last.MaxTokens != 300 || p2.last.Temperature != 0.7 {
		t.Fatalf("expected numeric params passed through, got %+v", p2.last)
	}
	if reg.Status("gemini").FailureCount != 1 {
		t.Fatalf("expected a failure recorded against gemini")
	}
}

func TestChainEmptyOutputCountsAsFailure(t *testing.T) {
	p1 := &stubProvider{name: "gemini", text: "   "}
	p2 := &stubProvider{name: "openai", text: "ok"}
	reg := newRegistry()
	rec := &countingRecorder{}
	chain := NewChain("chat", reg, []Provider{p1, p2}, WithLogger(logging.Discard()), WithRecorder(rec))

	res := chain.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if res.Provider != "openai" {
		t.Fatalf("expected openai, got %s", res.Provider)
	}
	if reg.Status("gemini").FailureCount != 1 {
		t.Fatalf("expected empty output to count as a failure")
	}
	if rec.outcomes["gemini:empty"] != 1 || rec.outcomes["openai:success"] != 1 {
		t.Fatalf("unexpected outcomes %v", rec.outcomes)
	}
}

func TestChainAllFailReturnsTemplate(t *testing.T) {
	p1 := &stubProvider{name: "gemini", err: errors.New("down")}
	p2 := &stubProvider{name: "openai", err: errors.New("down")}
	rec := &countingRecorder{}
	chain := NewChain("chat", newRegistry(), []Provider{p1, p2}, WithLogger(logging.Discard()), WithRecorder(rec))

	res := chain.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !res.FromTemplate() || res.Text != FallbackText {
		t.Fatalf("expected template result, got %+v", res)
	}
	if rec.templates != 1 {
		t.Fatalf("expected template to be observed once")
	}
}

func TestChainSkipsOpenCircuitWithoutExtraFailure(t *testing.T) {
	p1 := &stubProvider{name: "gemini", text: "unused"}
	p2 := &stubProvider{name: "openai", text: "fine"}
	reg := newRegistry()
	for i := 0; i < 3; i++ {
		reg.RecordFailure("gemini")
	}
	chain := NewChain("chat", reg, []Provider{p1, p2}, WithLogger(logging.Discard()))

	res := chain.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if res.Provider != "openai" {
		t.Fatalf("expected openai, got %s", res.Provider)
	}
	if p1.Calls() != 0 {
		t.Fatalf("expected open circuit provider not to be called")
	}
	if got := reg.Status("gemini").FailureCount; got != 3 {
		t.Fatalf("expected failure count to stay at 3, got %d", got)
	}
}

func TestChainAllCircuitsOpenIsFast(t *testing.T) {
	p1 := &stubProvider{name: "gemini", delay: time.Second}
	reg := newRegistry()
	for i := 0; i < 3; i++ {
		reg.RecordFailure("gemini")
	}
	chain := NewChain("chat", reg, []Provider{p1}, WithLogger(logging.Discard()))

	start := time.Now()
	res := chain.Generate(context.Background(), Request{})
	if !res.FromTemplate() {
		t.Fatalf("expected template")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected template without waiting on providers")
	}
}

func TestChainTimeoutBoundsSlowProvider(t *testing.T) {
	slow := &stubProvider{name: "gemini", text: "late", delay: 2 * time.Second}
	fast := &stubProvider{name: "openai", text: "quick"}
	chain := NewChain("chat", newRegistry(), []Provider{slow, fast}, WithLogger(logging.Discard()), WithTimeout(50*time.Millisecond))

	start := time.Now()
	res := chain.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if res.Provider != "openai" {
		t.Fatalf("expected fallback to openai, got %s", res.Provider)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected slow provider to be cut at the timeout")
	}
}

func TestChainIgnoresCallerCancellation(t *testing.T) {
	p := &stubProvider{name: "gemini", text: "still here", delay: 20 * time.Millisecond}
	chain := NewChain("chat", newRegistry(), []Provider{p}, WithLogger(logging.Discard()), WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := chain.Generate(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if res.Provider != "gemini" {
		t.Fatalf("expected provider call to complete despite cancelled caller, got %s", res.Provider)
	}
}

type panicProvider struct{}

func (panicProvider) Name() string { return "flaky" }
func (panicProvider) Complete(context.Context, Request) (Response, error) {
	panic("kaboom")
}

func TestChainRecoversProviderPanic(t *testing.T) {
	chain := NewChain("chat", newRegistry(), []Provider{panicProvider{}}, WithLogger(logging.Discard()))
	res := chain.Generate(context.Background(), Request{})
	if !res.FromTemplate() {
		t.Fatalf("expected template after panic, got %+v", res)
	}
}

func TestChainCustomFallbackText(t *testing.T) {
	chain := NewChain("extraction", newRegistry(), nil, WithLogger(logging.Discard()), WithFallbackText("{}"))
	res := chain.Generate(context.Background(), Request{})
	if res.Text != "{}" || res.Provider != TemplateProvider {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestChainProviders(t *testing.T) {
	chain := NewChain("chat", newRegistry(), []Provider{&stubProvider{name: "a"}, &stubProvider{name: "b"}})
	names := chain.Providers()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
}
