package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stategraph/stategraph/graph/model"
)

func TestAddMessages_AppendsInOrder(t *testing.T) {
	current := []model.Message{{ID: "1", Role: model.RoleUser, Content: "hi"}}

	got, err := model.AddMessages(current, []model.Message{
		{ID: "2", Role: model.RoleAssistant, Content: "hello"},
		{ID: "3", Role: model.RoleUser, Content: "bye"},
	})
	require.NoError(t, err)

	msgs := got.([]model.Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"hi", "hello", "bye"}, contents(msgs))
}

func TestAddMessages_ReplacesMatchingID(t *testing.T) {
	current := []model.Message{
		{ID: "1", Role: model.RoleUser, Content: "hi"},
		{ID: "2", Role: model.RoleAssistant, Content: "draft"},
	}

	got, err := model.AddMessages(current, model.Message{ID: "2", Role: model.RoleAssistant, Content: "final"})
	require.NoError(t, err)

	msgs := got.([]model.Message)
	assert.Equal(t, []string{"hi", "final"}, contents(msgs))
	assert.Equal(t, "draft", current[1].Content, "current history must not be mutated")
}

func TestAddMessages_AssignsMissingIDs(t *testing.T) {
	got, err := model.AddMessages(nil, []model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleUser, Content: "b"},
	})
	require.NoError(t, err)

	msgs := got.([]model.Message)
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEmpty(t, msgs[1].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestAddMessages_DuplicateIDsInOneUpdate(t *testing.T) {
	got, err := model.AddMessages(nil, []model.Message{
		{ID: "x", Content: "first"},
		{ID: "x", Content: "second"},
	})
	require.NoError(t, err)

	msgs := got.([]model.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Content)
}

func TestAddMessages_RejectsOtherTypes(t *testing.T) {
	_, err := model.AddMessages(nil, "hello")
	assert.Error(t, err)

	_, err = model.AddMessages(42, model.UserMessage("hi"))
	assert.Error(t, err)

	_, err = model.AddMessages(nil, []any{model.UserMessage("ok"), "not a message"})
	assert.Error(t, err)
}

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  model.Message
		role string
	}{
		{model.UserMessage("u"), model.RoleUser},
		{model.SystemMessage("s"), model.RoleSystem},
		{model.AssistantMessage("a"), model.RoleAssistant},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.role, tt.msg.Role)
			assert.NotEmpty(t, tt.msg.ID)
		})
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := model.SplitSystem([]model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleSystem, Content: "be kind"},
		{Role: model.RoleAssistant, Content: "hello"},
	})

	assert.Equal(t, "be brief\n\nbe kind", system)
	assert.Equal(t, []string{"hi", "hello"}, contents(rest))
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
