package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
	"github.com/wolfman30/hotel-concierge-ai/internal/llm"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// BuildChatProviders constructs the configured providers in PROVIDER_ORDER.
// Providers without credentials are skipped with a warning. awsCfg may be
// nil when Bedrock is not in use.
func BuildChatProviders(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) ([]llm.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var providers []llm.Provider
	seen := map[string]bool{}
	for _, name := range cfg.ProviderOrder {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		provider, err := buildChatProvider(ctx, name, cfg, awsCfg)
		if err != nil {
			logger.Warn("language model provider unavailable", "provider", name, "error", err)
			continue
		}
		providers = append(providers, provider)
	}
	if len(providers) == 0 {
		logger.Warn("no language model providers configured; replies will use the fallback template")
	}
	return providers, nil
}

func buildChatProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (llm.Provider, error) {
	switch name {
	case "gemini":
		return llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "anthropic":
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bedrock model id is required")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("aws config is required for bedrock")
		}
		return llm.NewBedrockProvider(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// SelectExtractionProviders picks the providers used for lead extraction.
// EXTRACTION_PROVIDER moves the named provider to the front; the rest stay
// as fallbacks.
func SelectExtractionProviders(providers []llm.Provider, preferred string) []llm.Provider {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" {
		return providers
	}
	out := make([]llm.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range providers {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

// BuildEmbeddingProviders constructs embedding backends in EMBEDDING_ORDER.
func BuildEmbeddingProviders(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) []knowledge.EmbeddingProvider {
	if logger == nil {
		logger = logging.Default()
	}
	var providers []knowledge.EmbeddingProvider
	for _, name := range cfg.EmbeddingOrder {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				logger.Warn("gemini embeddings skipped: no api key")
				continue
			}
			client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
			if err != nil {
				logger.Warn("gemini embeddings unavailable", "error", err)
				continue
			}
			providers = append(providers, knowledge.NewGeminiEmbedder(client, cfg.GeminiEmbeddingModel))
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				logger.Warn("openai embeddings skipped: no api key")
				continue
			}
			providers = append(providers, knowledge.NewOpenAIEmbedder(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIEmbeddingModel))
		case "bedrock":
			if cfg.BedrockEmbeddingModelID == "" || awsCfg == nil {
				logger.Warn("bedrock embeddings skipped: no model id")
				continue
			}
			providers = append(providers, knowledge.NewBedrockEmbedder(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockEmbeddingModelID, cfg.EmbeddingDimensions))
		default:
			logger.Warn("unknown embedding provider", "provider", name)
		}
	}
	return providers
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	for _, name := range cfg.ProviderOrder {
		if strings.EqualFold(name, "bedrock") && cfg.BedrockModelID != "" {
			return true
		}
	}
	for _, name := range cfg.EmbeddingOrder {
		if strings.EqualFold(name, "bedrock") && cfg.BedrockEmbeddingModelID != "" {
			return true
		}
	}
	return !cfg.UseMemoryQueue || cfg.EmailProvider == "ses"
}
