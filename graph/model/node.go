package model

import (
	"context"
	"fmt"
	"time"

	"github.com/stategraph/stategraph/graph"
	"github.com/stategraph/stategraph/graph/emit"
)

// ChatNodeOption configures ChatNode.
type ChatNodeOption func(*chatNode)

type chatNode struct {
	model     ChatModel
	key       string
	system    string
	modelName string
	tracker   *UsageTracker
	emitter   emit.Emitter
}

// WithMessagesKey reads and writes the history under key instead of
// MessagesKey.
func WithMessagesKey(key string) ChatNodeOption {
	return func(n *chatNode) { n.key = key }
}

// WithSystemPrompt prepends a system message to every call.
// The prompt is sent to the model but never written to state.
func WithSystemPrompt(prompt string) ChatNodeOption {
	return func(n *chatNode) { n.system = prompt }
}

// WithModelName names the model for usage accounting when the provider
// does not report it.
func WithModelName(name string) ChatNodeOption {
	return func(n *chatNode) { n.modelName = name }
}

// WithUsageTracker records every successful call in t.
func WithUsageTracker(t *UsageTracker) ChatNodeOption {
	return func(n *chatNode) { n.tracker = t }
}

// WithEmitter emits a model_call event for every successful call.
func WithEmitter(e emit.Emitter) ChatNodeOption {
	return func(n *chatNode) { n.emitter = e }
}

// ChatNode returns a node that sends the conversation history to m and
// appends the reply as an assistant message.
//
// The history field must be merged with AddMessages (see MessagesField) so
// that the single-message update is appended rather than replacing the
// history. Model errors fail the attempt unchanged, leaving retry decisions
// to the node's retry policy.
//
// Example:
//
//	schema := graph.NewSchema(model.MessagesField(model.MessagesKey))
//	g := graph.NewStateGraph(schema)
//	_ = g.AddNode("chatbot", model.ChatNode(m, model.WithSystemPrompt("Be brief.")))
//	_ = g.AddEdge(graph.Start, "chatbot")
//	_ = g.AddEdge("chatbot", graph.End)
func ChatNode(m ChatModel, opts ...ChatNodeOption) graph.NodeFunc {
	n := &chatNode{model: m, key: MessagesKey}
	for _, opt := range opts {
		opt(n)
	}
	return n.run
}

func (n *chatNode) run(ctx context.Context, s graph.State, rt graph.Runtime) graph.NodeResult {
	history, err := History(s, n.key)
	if err != nil {
		return graph.Fail(fmt.Errorf("chat node: %w", err))
	}

	prompt := history
	if n.system != "" {
		prompt = make([]Message, 0, len(history)+1)
		prompt = append(prompt, Message{Role: RoleSystem, Content: n.system})
		prompt = append(prompt, history...)
	}

	start := time.Now()
	out, err := n.model.Chat(ctx, prompt)
	if err != nil {
		return graph.Fail(err)
	}
	n.observe(rt, out, time.Since(start))

	return graph.Update(graph.State{n.key: AssistantMessage(out.Text)})
}

func (n *chatNode) observe(rt graph.Runtime, out ChatOut, elapsed time.Duration) {
	name := out.Model
	if name == "" {
		name = n.modelName
	}

	call := Call{RunID: rt.RunID, Node: rt.Node, Step: rt.Step, Model: name, Usage: out.Usage}
	if n.tracker != nil {
		call = n.tracker.Record(call)
	}
	if n.emitter != nil {
		n.emitter.Emit(emit.Event{
			RunID:  rt.RunID,
			Step:   rt.Step,
			NodeID: rt.Node,
			Msg:    emit.MsgModelCall,
			Meta: map[string]interface{}{
				"model":         name,
				"input_tokens":  out.Usage.InputTokens,
				"output_tokens": out.Usage.OutputTokens,
				"cost_usd":      call.CostUSD,
				"duration_ms":   elapsed.Milliseconds(),
			},
		})
	}
}
