package model

import (
	"context"
	"sync"
)

// MockChatModel is a ChatModel for tests.
//
// Each call returns the next entry of Responses; once they are consumed the
// last one repeats. If Err is set it is returned instead. Every call is
// recorded, including failed ones.
//
// Example:
//
//	mock := &model.MockChatModel{
//	    Responses: []model.ChatOut{{Text: "first"}, {Text: "second"}},
//	}
//
// MockChatModel is safe for concurrent use.
type MockChatModel struct {
	Responses []ChatOut
	Err       error

	// Errs, when non-empty, is consumed before Responses: call i fails with
	// Errs[i] if it is non-nil. Useful for exercising retry policies.
	Errs []error

	mu    sync.Mutex
	calls [][]Message
	next  int
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.calls)
	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, recorded)

	if call < len(m.Errs) && m.Errs[call] != nil {
		return ChatOut{}, m.Errs[call]
	}
	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// Calls returns the messages of every call so far.
func (m *MockChatModel) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears the call history and rewinds Responses.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
