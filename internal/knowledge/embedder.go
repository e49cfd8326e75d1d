package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// degeneratePrefix is how many leading dimensions are inspected to decide
// whether a vector is the zero sentinel.
const degeneratePrefix = 10

// Embedder turns text into a vector. It never fails; when no provider can
// produce an embedding it returns the zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// EmbeddingProvider is one embedding backend.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Breaker is the subset of the circuit breaker registry used here.
type Breaker interface {
	CanExecute(service string) bool
	RecordSuccess(service string)
	RecordFailure(service string)
}

// IsDegenerate reports whether vec is empty or zero across its leading
// dimensions.
func IsDegenerate(vec []float32) bool {
	n := len(vec)
	if n > degeneratePrefix {
		n = degeneratePrefix
	}
	for i := 0; i < n; i++ {
		if vec[i] != 0 {
			return false
		}
	}
	return true
}

// FallbackEmbedder walks embedding providers in order and returns the zero
// vector when all are unavailable.
type FallbackEmbedder struct {
	providers  []EmbeddingProvider
	breakers   Breaker
	dimensions int
	timeout    time.Duration
	logger     *logging.Logger
}

// NewFallbackEmbedder builds an embedder. breakers may be nil.
func NewFallbackEmbedder(providers []EmbeddingProvider, breakers Breaker, dimensions int, timeout time.Duration, logger *logging.Logger) *FallbackEmbedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackEmbedder{
		providers:  providers,
		breakers:   breakers,
		dimensions: dimensions,
		timeout:    timeout,
		logger:     logger.Component("embedder"),
	}
}

// Dimensions is the length of the zero sentinel.
func (e *FallbackEmbedder) Dimensions() int { return e.dimensions }

func (e *FallbackEmbedder) Embed(ctx context.Context, text string) []float32 {
	for _, p := range e.providers {
		name := "embedding:" + p.Name()
		if e.breakers != nil && !e.breakers.CanExecute(name) {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		vec, err := p.Embed(callCtx, text)
		cancel()
		if err == nil && len(vec) > 0 {
			if e.breakers != nil {
				e.breakers.RecordSuccess(name)
			}
			return vec
		}
		if err == nil {
			err = errors.New("empty embedding")
		}
		if e.breakers != nil {
			e.breakers.RecordFailure(name)
		}
		e.logger.Warn("embedding provider failed", "provider", p.Name(), "error", err)
	}
	return make([]float32, e.dimensions)
}

// GeminiEmbedder uses the Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	if client == nil {
		panic("knowledge: gemini client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model}
}

func (g *GeminiEmbedder) Name() string { return "gemini" }

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.client.EmbeddingModel(g.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("knowledge: gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil {
		return nil, errors.New("knowledge: gemini returned no embedding")
	}
	return res.Embedding.Values, nil
}

type openAIEmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder uses the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openAIEmbeddingAPI
	model  string
}

func NewOpenAIEmbedder(client openAIEmbeddingAPI, model string) *OpenAIEmbedder {
	if client == nil {
		panic("knowledge: openai client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{client: client, model: model}
}

func (o *OpenAIEmbedder) Name() string { return "openai" }

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("knowledge: openai returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder calls a Titan text embedding model through InvokeModel.
type BedrockEmbedder struct {
	api        bedrockInvokeModelAPI
	modelID    string
	dimensions int
}

func NewBedrockEmbedder(api bedrockInvokeModelAPI, modelID string, dimensions int) *BedrockEmbedder {
	if api == nil {
		panic("knowledge: bedrock runtime client cannot be nil")
	}
	return &BedrockEmbedder{api: api, modelID: modelID, dimensions: dimensions}
}

func (b *BedrockEmbedder) Name() string { return "bedrock" }

func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(b.modelID) == "" {
		return nil, errors.New("knowledge: bedrock embedding model id is required")
	}
	body := map[string]any{"inputText": text}
	if b.dimensions > 0 {
		body["dimensions"] = b.dimensions
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embedding request marshal: %w", err)
	}

	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, fmt.Errorf("knowledge: embedding response parse: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, errors.New("knowledge: embedding response was empty")
	}

	vec := make([]float32, len(decoded.Embedding))
	for i, f := range decoded.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
