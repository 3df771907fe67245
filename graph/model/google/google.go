// Package google adapts Google's Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stategraph/stategraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gemini-1.5-flash"

// ErrNoPrompt is returned when a conversation holds only system messages.
var ErrNoPrompt = errors.New("google: conversation has no user or assistant messages")

// generator sends one chat turn: history followed by the last message.
type generator interface {
	generate(ctx context.Context, system string, history []*genai.Content, last []genai.Part) (*genai.GenerateContentResponse, error)
}

// ChatModel implements model.ChatModel for Gemini models.
//
// The conversation maps onto a Gemini chat session: system messages become
// the system instruction, assistant messages take the "model" role, and the
// last message is sent as the new turn.
//
// The SDK client is created on first use and reused. Call Close to release
// it.
//
// Example:
//
//	m := google.NewChatModel(os.Getenv("GEMINI_API_KEY"), "gemini-1.5-pro")
//	defer m.Close()
type ChatModel struct {
	modelName string
	client    generator
}

// NewChatModel creates a Gemini chat model.
func NewChatModel(apiKey, modelName string, opts ...option.ClientOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client: &sdkClient{
			modelName: modelName,
			opts:      append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...),
		},
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, history, last, err := toContents(messages)
	if err != nil {
		return model.ChatOut{}, err
	}

	resp, err := m.client.generate(ctx, system, history, last)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}

	out, err := fromResponse(resp)
	if err != nil {
		return model.ChatOut{}, err
	}
	out.Model = m.modelName
	return out, nil
}

// Close releases the SDK client, if one was created.
func (m *ChatModel) Close() error {
	if c, ok := m.client.(*sdkClient); ok {
		return c.close()
	}
	return nil
}

func toContents(messages []model.Message) (string, []*genai.Content, []genai.Part, error) {
	system, rest := model.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, nil, ErrNoPrompt
	}

	history := make([]*genai.Content, 0, len(rest)-1)
	for _, msg := range rest[:len(rest)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return system, history, []genai.Part{genai.Text(rest[len(rest)-1].Content)}, nil
}

func fromResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	out := model.ChatOut{Text: text.String()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = model.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

// SafetyFilterError reports a prompt or reply blocked by Gemini's safety
// filters. It is never retryable.
//
//	var blocked *google.SafetyFilterError
//	if errors.As(err, &blocked) {
//	    log.Printf("blocked: %s", blocked.Reason)
//	}
type SafetyFilterError struct {
	Reason     string
	Categories []string
}

func (e *SafetyFilterError) Error() string {
	if len(e.Categories) == 0 {
		return "google: content blocked: " + e.Reason
	}
	return fmt.Sprintf("google: content blocked: %s (%s)", e.Reason, strings.Join(e.Categories, ", "))
}

func blockedError(b *genai.BlockedError) *SafetyFilterError {
	out := &SafetyFilterError{}
	var ratings []*genai.SafetyRating
	switch {
	case b.PromptFeedback != nil:
		out.Reason = b.PromptFeedback.BlockReason.String()
		ratings = b.PromptFeedback.SafetyRatings
	case b.Candidate != nil:
		out.Reason = b.Candidate.FinishReason.String()
		ratings = b.Candidate.SafetyRatings
	}
	for _, r := range ratings {
		if r != nil && r.Blocked {
			out.Categories = append(out.Categories, r.Category.String())
		}
	}
	return out
}

func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return blockedError(blocked)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "google",
			StatusCode: apiErr.Code,
			Retryable:  model.RetryableStatus(apiErr.Code),
			Err:        err,
		}
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return &model.ProviderError{
			Provider:   "google",
			StatusCode: httpStatus(s.Code()),
			Retryable:  retryableCode(s.Code()),
			Err:        err,
		}
	}
	return &model.ProviderError{Provider: "google", Err: fmt.Errorf("request failed: %w", err)}
}

func retryableCode(c codes.Code) bool {
	switch c {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal, codes.Aborted, codes.DeadlineExceeded:
		return true
	}
	return false
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sdkClient lazily creates and reuses a genai.Client.
type sdkClient struct {
	modelName string
	opts      []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

func (c *sdkClient) get(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *sdkClient) generate(ctx context.Context, system string, history []*genai.Content, last []genai.Part) (*genai.GenerateContentResponse, error) {
	client, err := c.get(ctx)
	if err != nil {
		return nil, err
	}

	gm := client.GenerativeModel(c.modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := gm.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, last...)
}

func (c *sdkClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
