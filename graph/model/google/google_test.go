package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stategraph/stategraph/graph/model"
)

type fakeGenerator struct {
	system  string
	history []*genai.Content
	last    []genai.Part
	resp    *genai.GenerateContentResponse
	err     error
}

func (f *fakeGenerator) generate(_ context.Context, system string, history []*genai.Content, last []genai.Part) (*genai.GenerateContentResponse, error) {
	f.system, f.history, f.last = system, history, last
	return f.resp, f.err
}

func reply(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
	}
}

func TestChat_MapsConversation(t *testing.T) {
	fake := &fakeGenerator{resp: reply(genai.Text("Ber"), genai.Text("lin"))}
	m := &ChatModel{modelName: "gemini-test", client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "One word."},
		{Role: model.RoleUser, Content: "Capital of France?"},
		{Role: model.RoleAssistant, Content: "Paris"},
		{Role: model.RoleUser, Content: "Germany?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Berlin", out.Text)
	assert.Equal(t, "gemini-test", out.Model)
	assert.Equal(t, model.Usage{InputTokens: 7, OutputTokens: 3}, out.Usage)

	assert.Equal(t, "One word.", fake.system)
	require.Len(t, fake.history, 2)
	assert.Equal(t, "user", fake.history[0].Role)
	assert.Equal(t, "model", fake.history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Germany?")}, fake.last)
}

func TestChat_SystemOnlyConversation(t *testing.T) {
	m := &ChatModel{modelName: "x", client: &fakeGenerator{}}

	_, err := m.Chat(context.Background(), []model.Message{model.SystemMessage("hi")})
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestChat_EmptyCandidates(t *testing.T) {
	m := &ChatModel{modelName: "x", client: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}

	_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")})
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}

func TestChat_TranslatesErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"rest rate limit", &googleapi.Error{Code: 429}, 429, true},
		{"rest bad request", &googleapi.Error{Code: 400}, 400, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), 503, true},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad key"), 401, false},
		{"plain", errors.New("boom"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ChatModel{modelName: "x", client: &fakeGenerator{err: tt.err}}

			_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")})

			var pe *model.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, model.IsRetryable(err))
		})
	}
}

func TestChat_SafetyBlock(t *testing.T) {
	blocked := &genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{
			BlockReason: genai.BlockReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryHarassment, Blocked: true},
				{Category: genai.HarmCategoryHateSpeech, Blocked: false},
			},
		},
	}
	m := &ChatModel{modelName: "x", client: &fakeGenerator{err: blocked}}

	_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")})

	var sf *SafetyFilterError
	require.ErrorAs(t, err, &sf)
	assert.Len(t, sf.Categories, 1)
	assert.False(t, model.IsRetryable(err))
}

func TestNewChatModel_DefaultModel(t *testing.T) {
	m := NewChatModel("key", "")
	assert.Equal(t, DefaultModel, m.modelName)
	assert.NoError(t, m.Close(), "closing an unused model is a no-op")
}
