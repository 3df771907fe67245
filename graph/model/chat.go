// Package model provides chat-model building blocks for graph nodes.
//
// The engine never depends on this package. It offers:
//   - Message and the AddMessages reducer for conversation-history state
//   - ChatModel, the provider-neutral interface implemented by the
//     openai, anthropic and google adapters
//   - ChatNode, which turns a ChatModel into a graph.NodeFunc
//   - UsageTracker, which accumulates token usage and cost per run
//   - MockChatModel for tests
package model

import "context"

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation.
//
// ID identifies the message within a history. AddMessages assigns one when
// it is empty, and an incoming message whose ID matches an existing entry
// replaces that entry in place.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`

	// Name optionally attributes the message to a participant.
	Name string `json:"name,omitempty"`
}

// ChatModel is a provider-neutral chat completion interface.
//
// Implementations must be safe for concurrent use and must honor ctx
// cancellation. Errors are returned as-is so that node retry policies can
// classify them.
//
// Example:
//
//	out, err := m.Chat(ctx, []model.Message{
//	    model.SystemMessage("You are terse."),
//	    model.UserMessage("Capital of France?"),
//	})
//	if err != nil {
//	    return graph.Fail(err)
//	}
//	fmt.Println(out.Text)
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// ChatOut is the result of one chat completion.
type ChatOut struct {
	// Text is the concatenated text content of the reply.
	Text string

	// Model is the model that produced the reply, when the provider reports it.
	Model string

	// Usage is the token accounting for the call. Zero when unavailable.
	Usage Usage
}

// Usage counts the tokens consumed by a call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// SplitSystem separates system messages from the rest of a conversation.
// Multiple system messages are joined with a blank line. Providers that
// take the system prompt as a separate parameter use this.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, rest
}
