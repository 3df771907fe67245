package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stategraph/stategraph/graph/model"
)

type fakeMessenger struct {
	got  anthropic.MessageNewParams
	resp *anthropic.Message
	err  error
}

func (f *fakeMessenger) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.got = body
	return f.resp, f.err
}

func TestChat_LiftsSystemPrompt(t *testing.T) {
	fake := &fakeMessenger{resp: &anthropic.Message{
		Model: anthropic.Model("claude-test"),
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Bon"},
			{Type: "text", Text: "jour"},
		},
		Usage: anthropic.Usage{InputTokens: 20, OutputTokens: 2},
	}}
	m := &ChatModel{modelName: "claude-test", maxTokens: 64, client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "Answer in French."},
		{Role: model.RoleUser, Content: "Hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", out.Text)
	assert.Equal(t, "claude-test", out.Model)
	assert.Equal(t, model.Usage{InputTokens: 20, OutputTokens: 2}, out.Usage)

	require.Len(t, fake.got.System, 1)
	assert.Equal(t, "Answer in French.", fake.got.System[0].Text)
	require.Len(t, fake.got.Messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, fake.got.Messages[0].Role)
	assert.Equal(t, int64(64), fake.got.MaxTokens)
}

func TestChat_AssistantTurns(t *testing.T) {
	fake := &fakeMessenger{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "ok"}},
	}}
	m := &ChatModel{modelName: "x", maxTokens: 10, client: fake}

	_, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
		{Role: model.RoleUser, Content: "c"},
	})
	require.NoError(t, err)

	require.Len(t, fake.got.Messages, 3)
	assert.Empty(t, fake.got.System)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, fake.got.Messages[1].Role)
}

func TestChat_NoTextIsEmptyResponse(t *testing.T) {
	m := &ChatModel{modelName: "x", maxTokens: 10, client: &fakeMessenger{resp: &anthropic.Message{}}}

	_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}

func TestChat_ClassifiesAPIErrors(t *testing.T) {
	for status, retryable := range map[int]bool{429: true, 529: true, 500: true, 401: false, 400: false} {
		m := &ChatModel{modelName: "x", maxTokens: 10, client: &fakeMessenger{err: &anthropic.Error{StatusCode: status}}}

		_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")})

		var pe *model.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "anthropic", pe.Provider)
		assert.Equal(t, retryable, model.IsRetryable(err), "status %d", status)
	}
}

func TestWithMaxTokens(t *testing.T) {
	m := NewChatModel("key", "")
	limited := m.WithMaxTokens(4096)

	assert.Equal(t, DefaultModel, m.modelName)
	assert.Equal(t, int64(DefaultMaxTokens), m.maxTokens)
	assert.Equal(t, int64(4096), limited.maxTokens)
}
