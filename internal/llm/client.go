// Package llm holds the language model provider adapters and the fallback
// chain that walks them in order.
package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

// Request is the generic chat request. Adapters translate it into their
// provider's wire format.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Provider is a single language model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// normalizeTurns drops blank turns and coerces unknown roles to user so
// every adapter sees only user/assistant.
func normalizeTurns(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := msg.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		out = append(out, Message{Role: role, Content: msg.Content})
	}
	return out
}

// mergeConsecutive folds adjacent turns that share a role, for providers
// that require strictly alternating user/assistant messages.
func mergeConsecutive(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}
