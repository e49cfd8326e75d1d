package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"
	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

type stubEmbeddingProvider struct {
	name  string
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbeddingProvider) Name() string { return s.name }

func (s *stubEmbeddingProvider) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func TestFallbackEmbedderUsesFirstWorkingProvider(t *testing.T) {
	first := &stubEmbeddingProvider{name: "gemini", err: errors.New("quota")}
	second := &stubEmbeddingProvider{name: "openai", vec: []float32{0.1, 0.2}}
	e := NewFallbackEmbedder([]EmbeddingProvider{first, second}, nil, 4, time.Second, logging.Discard())

	vec := e.Embed(context.Background(), "hello")
	if len(vec) != 2 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestFallbackEmbedderZeroVectorWhenAllFail(t *testing.T) {
	e := NewFallbackEmbedder([]EmbeddingProvider{&stubEmbeddingProvider{name: "gemini", err: errors.New("down")}}, nil, 8, time.Second, logging.Discard())
	vec := e.Embed(context.Background(), "hello")
	if len(vec) != 8 || !IsDegenerate(vec) {
		t.Fatalf("expected zero vector of 8 dims, got %v", vec)
	}
}

func TestFallbackEmbedderRespectsBreaker(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute}, breaker.WithLogger(logging.Discard()))
	p := &stubEmbeddingProvider{name: "gemini", err: errors.New("down")}
	e := NewFallbackEmbedder([]EmbeddingProvider{p}, reg, 4, time.Second, logging.Discard())

	e.Embed(context.Background(), "one")
	e.Embed(context.Background(), "two")
	if p.calls != 1 {
		t.Fatalf("expected open circuit to skip provider, calls=%d", p.calls)
	}
}

type fakeOpenAIEmbeddings struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f fakeOpenAIEmbeddings) CreateEmbeddings(context.Context, openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func TestOpenAIEmbedder(t *testing.T) {
	e := NewOpenAIEmbedder(fakeOpenAIEmbeddings{resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{1, 2, 3}}}}}, "")
	vec, err := e.Embed(context.Background(), "text")
	if err != nil || len(vec) != 3 {
		t.Fatalf("unexpected result %v %v", vec, err)
	}

	empty := NewOpenAIEmbedder(fakeOpenAIEmbeddings{}, "")
	if _, err := empty.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty response")
	}
}

type fakeInvokeModel struct {
	body []byte
	err  error
	in   *bedrockruntime.InvokeModelInput
}

func (f *fakeInvokeModel) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	fake := &fakeInvokeModel{body: []byte(`{"embedding":[0.5,0.25]}`)}
	e := NewBedrockEmbedder(fake, "amazon.titan-embed-text-v2:0", 256)

	vec, err := e.Embed(context.Background(), "pool")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if string(fake.in.Body) != `{"dimensions":256,"inputText":"pool"}` {
		t.Fatalf("unexpected payload %s", fake.in.Body)
	}

	if _, err := NewBedrockEmbedder(fake, "", 0).Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error without model id")
	}
}
