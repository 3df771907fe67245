package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stategraph/stategraph/graph"
)

// MessagesKey is the conventional state field for conversation history.
const MessagesKey = "messages"

// UserMessage returns a user message with a fresh ID.
func UserMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: content}
}

// SystemMessage returns a system message with a fresh ID.
func SystemMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleSystem, Content: content}
}

// AssistantMessage returns an assistant message with a fresh ID.
func AssistantMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Content: content}
}

// MessagesField declares a conversation-history field merged with
// AddMessages. The field starts as an empty history.
func MessagesField(name string) graph.Field {
	return graph.Field{Name: name, Reducer: AddMessages, Default: []Message{}}
}

// AddMessages is a graph.Reducer for conversation history.
//
// The incoming value may be a Message or a []Message. Each incoming message
// whose ID matches a message already in the history replaces it in place;
// every other message is appended in order. Messages without an ID are
// assigned one. The current history is never mutated.
//
// Example:
//
//	schema := graph.NewSchema(
//	    graph.Field{Name: "messages", Reducer: model.AddMessages},
//	)
func AddMessages(current, incoming any) (any, error) {
	existing, err := asMessages(current)
	if err != nil {
		return nil, fmt.Errorf("current history: %w", err)
	}
	updates, err := asMessages(incoming)
	if err != nil {
		return nil, fmt.Errorf("incoming messages: %w", err)
	}

	merged := make([]Message, len(existing), len(existing)+len(updates))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, msg := range merged {
		if msg.ID != "" {
			index[msg.ID] = i
		}
	}

	for _, msg := range updates {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if i, ok := index[msg.ID]; ok {
			merged[i] = msg
			continue
		}
		index[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	return merged, nil
}

func asMessages(v any) ([]Message, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case Message:
		return []Message{m}, nil
	case []Message:
		return m, nil
	case []any:
		out := make([]Message, 0, len(m))
		for i, item := range m {
			msg, ok := item.(Message)
			if !ok {
				return nil, fmt.Errorf("element %d: expected model.Message, got %T", i, item)
			}
			out = append(out, msg)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected model.Message or []model.Message, got %T", v)
	}
}

// History returns the conversation stored under key, or nil when absent.
func History(s graph.State, key string) ([]Message, error) {
	return asMessages(s[key])
}
