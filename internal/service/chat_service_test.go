package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"costsense-go/internal/model"
	"costsense-go/internal/repository"
	"costsense-go/pkg/llm"
	"costsense-go/pkg/metrics"
	"costsense-go/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClient = model.ClientInfo{IP: "10.0.0.1", UserAgent: "test-agent", AcceptLanguage: "en"}

type chatFixture struct {
	svc      ChatService
	repo     repository.ConversationRepository
	sessions *SessionResolver
	gemini   *fakeProvider
	openai   *fakeProvider
}

func newChatFixture(t *testing.T, limit int) *chatFixture {
	t.Helper()
	f := &chatFixture{
		repo:     repository.NewConversationRepository(20, 100, 10),
		sessions: NewSessionResolver(nil),
		gemini:   newFakeProvider("gemini", diagramResult("Node: EC2"), nil),
		openai:   newFakeProvider("openai", chatResult("Hello there"), nil),
	}
	m := metrics.New()
	gen := NewGenerationService([]llm.Provider{f.gemini, f.openai}, "openai", m)
	f.svc = NewChatService(gen, ratelimit.NewMemoryLimiter(limit, time.Minute), f.repo, f.sessions, m, 0)
	return f
}

func (f *chatFixture) history(t *testing.T) []model.ConversationTurn {
	t.Helper()
	turns, err := f.repo.Get(context.Background(), f.sessions.SessionID(testClient))
	require.NoError(t, err)
	return turns
}

func requireAPIError(t *testing.T, err error) *model.APIError {
	t.Helper()
	require.Error(t, err)
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	return apiErr
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name string
		req  model.ChatRequest
		want string
	}{
		{"empty", model.ChatRequest{Message: ""}, "Message is required."},
		{"whitespace", model.ChatRequest{Message: "   \n\t"}, "Message is required."},
		{"too long", model.ChatRequest{Message: strings.Repeat("a", DefaultMaxMessageLength+1)}, "too long"},
		{"unknown provider", model.ChatRequest{Message: "hi", Provider: "mystery"}, "Unknown provider: mystery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, 5)
			reply, status, err := f.svc.Chat(context.Background(), testClient, tt.req)
			assert.Nil(t, reply)
			assert.Nil(t, status)
			apiErr := requireAPIError(t, err)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, model.CodeInvalidInput, apiErr.Code)
			assert.Contains(t, apiErr.Message, tt.want)
			assert.Empty(t, f.history(t))
			assert.Equal(t, 0, f.gemini.Calls()+f.openai.Calls())
		})
	}
}

func TestChatMaxLengthCountsCharacters(t *testing.T) {
	f := newChatFixture(t, 5)
	_, _, err := f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: strings.Repeat("é", DefaultMaxMessageLength)})
	assert.NoError(t, err)
}

func TestChatDiagramReply(t *testing.T) {
	f := newChatFixture(t, 5)
	reply, status, err := f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "  draw a web app  ", Provider: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, "Node: EC2", reply.DSL)
	assert.Equal(t, "Here is your diagram.", reply.Reply)
	assert.Equal(t, "gemini", reply.Provider)
	assert.Equal(t, "draw a web app", f.gemini.lastPrompt)

	require.NotNil(t, status)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 4, status.Remaining)

	turns := f.history(t)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "draw a web app", turns[0].Text)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	require.NotNil(t, turns[1].DSL)
	assert.Equal(t, "Node: EC2", *turns[1].DSL)
}

func TestChatDefaultProviderAndHistorySnapshot(t *testing.T) {
	f := newChatFixture(t, 5)
	ctx := context.Background()

	reply, _, err := f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "openai", reply.Provider)
	assert.Empty(t, reply.DSL)
	assert.Empty(t, f.openai.lastHistory)

	_, _, err = f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "and again"})
	require.NoError(t, err)
	// 快照不包含本次的用户消息
	require.Len(t, f.openai.lastHistory, 2)
	assert.Equal(t, "hello", f.openai.lastHistory[0].Text)
	assert.Equal(t, "Hello there", f.openai.lastHistory[1].Text)
	assert.Len(t, f.history(t), 4)
}

func TestChatRateLimited(t *testing.T) {
	f := newChatFixture(t, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _, err := f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "hi"})
		require.NoError(t, err)
	}

	reply, status, err := f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "hi"})
	assert.Nil(t, reply)
	apiErr := requireAPIError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, model.CodeRateLimited, apiErr.Code)
	assert.GreaterOrEqual(t, apiErr.RetryAfter, time.Second)
	assert.Contains(t, apiErr.Message, "seconds")
	require.NotNil(t, status)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, 2, f.openai.Calls())
	assert.Len(t, f.history(t), 4)

	// 其他供应商的窗口独立
	_, _, err = f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "hi", Provider: "gemini"})
	assert.NoError(t, err)
}

func TestChatFailureKeepsUserTurn(t *testing.T) {
	f := newChatFixture(t, 5)
	f.openai.err = &llm.ProviderError{Provider: "openai", Kind: model.ErrorKindTransport, StatusCode: http.StatusBadGateway, Message: "bad gateway"}

	_, status, err := f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "hi"})
	apiErr := requireAPIError(t, err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, model.CodeGenerationFailed, apiErr.Code)
	assert.Equal(t, "openai", apiErr.Provider)
	assert.NotEmpty(t, apiErr.FallbackMessage)
	assert.NotNil(t, status)

	turns := f.history(t)
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleUser, turns[0].Role)
}

func TestChatErrorKinds(t *testing.T) {
	f := newChatFixture(t, 5)
	f.openai.err = &llm.ProviderError{Provider: "openai", Kind: model.ErrorKindTimeout, Message: "timeout"}
	_, _, err := f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "hi"})
	apiErr := requireAPIError(t, err)
	assert.Equal(t, http.StatusRequestTimeout, apiErr.Status)
	assert.Equal(t, model.CodeTimeout, apiErr.Code)

	f.gemini.unconfig = true
	_, _, err = f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "hi", Provider: "gemini"})
	apiErr = requireAPIError(t, err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, model.CodeProviderNotConfigured, apiErr.Code)
	assert.Empty(t, apiErr.FallbackMessage)

	f.openai.err = errors.New("unexpected")
	_, _, err = f.svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "hi"})
	apiErr = requireAPIError(t, err)
	assert.Equal(t, model.CodeInternal, apiErr.Code)
}

func TestChatRegenerate(t *testing.T) {
	f := newChatFixture(t, 5)
	ctx := context.Background()
	_, _, err := f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "first"})
	require.NoError(t, err)
	_, _, err = f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "second"})
	require.NoError(t, err)

	_, _, err = f.svc.Chat(ctx, testClient, model.ChatRequest{Message: "second", Regenerate: true})
	require.NoError(t, err)
	require.Len(t, f.openai.lastHistory, 2)
	assert.Equal(t, "first", f.openai.lastHistory[0].Text)

	turns := f.history(t)
	require.Len(t, turns, 5)
	assert.Equal(t, model.RoleAssistant, turns[4].Role)
}

func TestWithoutLastExchange(t *testing.T) {
	h := []model.ConversationTurn{
		{Role: model.RoleUser, Text: "a"},
		{Role: model.RoleAssistant, Text: "A"},
		{Role: model.RoleUser, Text: "b"},
	}
	assert.Len(t, withoutLastExchange(h, "b"), 2)
	assert.Len(t, withoutLastExchange(h, "c"), 3)
	assert.Len(t, withoutLastExchange(h[:2], "a"), 0)
	assert.Empty(t, withoutLastExchange(nil, "a"))
}

type brokenLimiter struct{}

func (brokenLimiter) Admit(context.Context, string, string) (bool, error) {
	return false, errors.New("redis down")
}
func (brokenLimiter) Remaining(context.Context, string, string) (int, error) {
	return 0, errors.New("redis down")
}
func (brokenLimiter) ResetAt(context.Context, string, string) (time.Time, error) {
	return time.Time{}, errors.New("redis down")
}
func (brokenLimiter) Limit() int { return 10 }

func TestChatLimiterFailureAdmits(t *testing.T) {
	openai := newFakeProvider("openai", chatResult("ok"), nil)
	gen := NewGenerationService([]llm.Provider{openai}, "openai", nil)
	svc := NewChatService(gen, brokenLimiter{}, repository.NewConversationRepository(0, 0, 0), NewSessionResolver(nil), nil, 0)

	reply, status, err := svc.Chat(context.Background(), testClient, model.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Reply)
	assert.Equal(t, 10, status.Remaining)
}
