package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider using the Anthropic messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "claude-3-5-haiku-20241022"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends the system prompt as the top-level system parameter.
// Anthropic requires alternating turns starting with the user.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	turns := anthropicTurns(req.Messages)
	if len(turns) == 0 {
		return Response{}, errors.New("llm: anthropic requires at least one message")
	}

	messages := make([]anthropic.MessageParam, len(turns))
	for i, msg := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.F(p.model),
		MaxTokens:   anthropic.F(maxTokens),
		Messages:    anthropic.F(messages),
		Temperature: anthropic.F(float64(req.Temperature)),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(req.System),
		}})
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}

	return Response{
		Text:       strings.TrimSpace(content.String()),
		StopReason: string(resp.StopReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.InputTokens),
			OutputTokens: int32(resp.Usage.OutputTokens),
			TotalTokens:  int32(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// anthropicTurns merges same-role neighbours and drops leading assistant turns.
func anthropicTurns(messages []Message) []Message {
	turns := mergeConsecutive(normalizeTurns(messages))
	for len(turns) > 0 && turns[0].Role == RoleAssistant {
		turns = turns[1:]
	}
	return turns
}
