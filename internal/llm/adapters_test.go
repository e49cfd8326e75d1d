package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAIChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeOpenAIChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIProviderTranslatesRoles(t *testing.T) {
	fake := &fakeOpenAIChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: " hi there "}, FinishReason: openai.FinishReasonStop}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	p := NewOpenAIProviderWithAPI(fake, "gpt-4o-mini")

	resp, err := p.Complete(context.Background(), Request{
		System: "system prompt",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "welcome"},
			{Role: "staff", Content: "odd role"},
			{Role: RoleUser, Content: ""},
		},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)

	require.Len(t, fake.req.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, fake.req.Messages[2].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, fake.req.Messages[3].Role)
	assert.Equal(t, 300, fake.req.MaxTokens)
	assert.InDelta(t, 0.7, fake.req.Temperature, 0.0001)
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	p := NewOpenAIProviderWithAPI(&fakeOpenAIChat{}, "")
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockProviderBuildsConverseInput(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Selamat datang"}},
		}},
		Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(3), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(5)},
	}}
	p := NewBedrockProvider(fake, "anthropic.claude-3-haiku")

	resp, err := p.Complete(context.Background(), Request{
		System: "sys",
		Messages: []Message{
			{Role: RoleAssistant, Content: "greeting"},
			{Role: RoleUser, Content: "a"},
			{Role: RoleUser, Content: "b"},
		},
		MaxTokens:   150,
		Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Selamat datang", resp.Text)
	assert.Equal(t, int32(5), resp.Usage.TotalTokens)

	require.Len(t, fake.input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, fake.input.Messages[0].Role)
	text := fake.input.Messages[0].Content[0].(*brtypes.ContentBlockMemberText).Value
	assert.Equal(t, "a\n\nb", text)
	require.Len(t, fake.input.System, 1)
	assert.Equal(t, float32(0), aws.ToFloat32(fake.input.InferenceConfig.Temperature))
}

func TestBedrockProviderError(t *testing.T) {
	p := NewBedrockProvider(&fakeConverse{err: errors.New("throttled")}, "model")
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}

func TestAnthropicTurnsAlternate(t *testing.T) {
	turns := anthropicTurns([]Message{
		{Role: RoleAssistant, Content: "intro"},
		{Role: RoleUser, Content: "one"},
		{Role: "staff", Content: "two"},
		{Role: RoleAssistant, Content: "reply"},
	})
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "one\n\ntwo", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
}

func TestProviderConstructorsRequireKeys(t *testing.T) {
	_, err := NewOpenAIProvider("", "")
	assert.Error(t, err)
	_, err = NewAnthropicProvider(" ", "")
	assert.Error(t, err)
	_, err = NewGeminiProvider(context.Background(), "", "")
	assert.Error(t, err)
}
