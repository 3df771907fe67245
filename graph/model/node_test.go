package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stategraph/stategraph/graph"
	"github.com/stategraph/stategraph/graph/emit"
	"github.com/stategraph/stategraph/graph/model"
)

func chatbot(t *testing.T, m model.ChatModel, opts ...model.ChatNodeOption) *graph.CompiledGraph {
	t.Helper()

	g := graph.NewStateGraph(graph.NewSchema(model.MessagesField(model.MessagesKey)))
	require.NoError(t, g.AddNode("chatbot", model.ChatNode(m, opts...)))
	require.NoError(t, g.AddEdge(graph.Start, "chatbot"))
	require.NoError(t, g.AddEdge("chatbot", graph.End))

	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}

func TestChatNode_AppendsReply(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Paris"}}}
	compiled := chatbot(t, mock, model.WithSystemPrompt("Answer in one word."))

	final, err := compiled.Invoke(context.Background(), graph.State{
		model.MessagesKey: []model.Message{model.UserMessage("Capital of France?")},
	}, nil)
	require.NoError(t, err)

	history, err := model.History(final, model.MessagesKey)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, "Paris", history[1].Content)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, model.RoleSystem, calls[0][0].Role, "system prompt is sent first")
	assert.Equal(t, "Capital of France?", calls[0][1].Content)
}

func TestChatNode_ModelErrorFailsNode(t *testing.T) {
	boom := errors.New("provider down")
	mock := &model.MockChatModel{Err: boom}
	compiled := chatbot(t, mock)

	_, err := compiled.Invoke(context.Background(), graph.State{
		model.MessagesKey: []model.Message{model.UserMessage("hi")},
	}, nil)

	var nodeErr *graph.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "chatbot", nodeErr.Node)
	assert.ErrorIs(t, err, boom)
}

func TestChatNode_RetriesTransientFailure(t *testing.T) {
	mock := &model.MockChatModel{
		Errs:      []error{errors.New("rate limited")},
		Responses: []model.ChatOut{{Text: "ok"}},
	}

	g := graph.NewStateGraph(graph.NewSchema(model.MessagesField(model.MessagesKey)))
	require.NoError(t, g.AddNode("chatbot", model.ChatNode(mock),
		graph.WithRetry(graph.RetryPolicy{MaxAttempts: 2})))
	require.NoError(t, g.AddEdge(graph.Start, "chatbot"))
	require.NoError(t, g.AddEdge("chatbot", graph.End))
	compiled, err := g.Compile()
	require.NoError(t, err)

	final, err := compiled.Invoke(context.Background(), graph.State{
		model.MessagesKey: []model.Message{model.UserMessage("hi")},
	}, nil)
	require.NoError(t, err)

	history, err := model.History(final, model.MessagesKey)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[1].Content)
	assert.Equal(t, 2, mock.CallCount())
}

func TestChatNode_RecordsUsageAndEmits(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{
		Text:  "hello",
		Usage: model.Usage{InputTokens: 1_000_000, OutputTokens: 500_000},
	}}}
	tracker := model.NewUsageTracker()
	tracker.SetPricing("test-model", model.Pricing{InputPer1M: 1, OutputPer1M: 2})
	events := emit.NewBufferedEmitter()

	compiled := chatbot(t, mock,
		model.WithModelName("test-model"),
		model.WithUsageTracker(tracker),
		model.WithEmitter(events),
	)

	_, err := compiled.Invoke(context.Background(), graph.State{
		model.MessagesKey: []model.Message{model.UserMessage("hi")},
	}, nil, graph.WithRunID("run-1"))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, tracker.TotalCost(), 1e-9)
	calls := tracker.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "run-1", calls[0].RunID)
	assert.Equal(t, "chatbot", calls[0].Node)

	modelCalls := events.History("run-1", emit.HistoryFilter{Msg: emit.MsgModelCall})
	require.Len(t, modelCalls, 1)
	assert.Equal(t, "test-model", modelCalls[0].Meta["model"])
}
