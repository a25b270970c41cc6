package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"
	"costsense-go/pkg/icon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diagramJSON = `{"dsl":"Cluster: web\nNode: lb [name=LB]\nNode: ec2 [name=A]\nLB -> A","explanation":"A load balancer."}`

func testOptions(t *testing.T) Options {
	t.Helper()
	vocab, err := icon.DefaultVocabulary()
	require.NoError(t, err)
	return Options{Resolver: icon.NewResolver(vocab), Timeout: 2 * time.Second}
}

func providerConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{APIKey: "sk-test-123", BaseURL: baseURL, Model: "test-model", Temperature: 0.2, MaxTokens: 256}
}

func historyOf(n int) []model.ConversationTurn {
	turns := make([]model.ConversationTurn, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		turns = append(turns, model.ConversationTurn{Role: role, Text: fmt.Sprintf("turn %d", i)})
	}
	return turns
}

func openAIServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handle))
	t.Cleanup(srv.Close)
	return srv
}

func writeOpenAICompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var sent struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test-123", r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		writeOpenAICompletion(w, diagramJSON)
	})

	p := NewOpenAIProvider(providerConfig(srv.URL), testOptions(t))
	res, err := p.Generate(context.Background(), "draw a load balancer", historyOf(10))
	require.NoError(t, err)

	assert.Equal(t, dsl.StructuredDiagram, res.Kind)
	require.NotNil(t, res.DSL)
	assert.Contains(t, *res.DSL, "Node: ELB [name=LB]")
	assert.Contains(t, *res.DSL, "Node: EC2 [name=A]")
	assert.Equal(t, "A load balancer.", res.Explanation)

	assert.Equal(t, "test-model", sent.Model)
	// system + 最近 6 条历史 + 当前提示词
	require.Len(t, sent.Messages, 8)
	assert.Equal(t, "system", sent.Messages[0].Role)
	assert.Contains(t, string(sent.Messages[1].Content), "turn 4")
	assert.Equal(t, "user", sent.Messages[7].Role)
	assert.Contains(t, string(sent.Messages[7].Content), "draw a load balancer")
}

func TestOpenAIProviderUpstreamError(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided: sk-test-123","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	p := NewOpenAIProvider(providerConfig(srv.URL), testOptions(t))
	_, err := p.Generate(context.Background(), "hi", nil)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ProviderOpenAI, perr.Provider)
	assert.Equal(t, model.ErrorKindTransport, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Contains(t, perr.Message, "Incorrect API key")
}

func TestOpenAIProviderEmptyContent(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeOpenAICompletion(w, "   ")
	})

	p := NewOpenAIProvider(providerConfig(srv.URL), testOptions(t))
	_, err := p.Generate(context.Background(), "hi", nil)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, model.ErrorKindContent, perr.Kind)
	assert.ErrorIs(t, err, dsl.ErrEmptyResponse)
}

func TestOpenAIProviderTimeout(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	opts := testOptions(t)
	opts.Timeout = 50 * time.Millisecond
	p := NewOpenAIProvider(providerConfig(srv.URL), opts)

	start := time.Now()
	_, err := p.Generate(context.Background(), "hi", nil)
	assert.Less(t, time.Since(start), time.Second)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, model.ErrorKindTimeout, perr.Kind)
}

func TestProviderNotConfigured(t *testing.T) {
	opts := testOptions(t)
	cfg := config.ProviderConfig{Model: "m"}

	for _, p := range []Provider{
		NewOpenAIProvider(cfg, opts),
		NewGeminiProvider(context.Background(), cfg, opts),
		NewAnthropicProvider(cfg, opts),
	} {
		t.Run(p.Name(), func(t *testing.T) {
			assert.False(t, p.IsConfigured())

			err := p.ValidateConfiguration(context.Background())
			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, model.ErrorKindConfiguration, perr.Kind)

			_, err = p.Generate(context.Background(), "hi", nil)
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, model.ErrorKindConfiguration, perr.Kind)
		})
	}
}

func TestValidateConfiguration(t *testing.T) {
	opts := testOptions(t)

	p := NewOpenAIProvider(config.ProviderConfig{APIKey: "k", Model: "m"}, opts)
	assert.True(t, p.IsConfigured())
	assert.NoError(t, p.ValidateConfiguration(context.Background()))

	p = NewOpenAIProvider(config.ProviderConfig{APIKey: "k"}, opts)
	assert.Error(t, p.ValidateConfiguration(context.Background()))

	p = NewOpenAIProvider(config.ProviderConfig{APIKey: "k", Model: "m", BaseURL: "not a url"}, opts)
	assert.Error(t, p.ValidateConfiguration(context.Background()))
}

func TestGeminiProviderGenerate(t *testing.T) {
	var sent struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": diagramJSON}},
				},
				"finishReason": "STOP",
			}},
		})
	})

	p := NewGeminiProvider(context.Background(), providerConfig(srv.URL), testOptions(t))
	require.NoError(t, p.ValidateConfiguration(context.Background()))

	res, err := p.Generate(context.Background(), "draw it", historyOf(2))
	require.NoError(t, err)
	require.NotNil(t, res.DSL)
	assert.Contains(t, *res.DSL, "Node: ELB [name=LB]")

	require.Len(t, sent.Contents, 3)
	assert.Equal(t, "model", sent.Contents[1].Role)
	assert.Equal(t, "draw it", sent.Contents[2].Parts[0].Text)
	require.NotEmpty(t, sent.SystemInstruction.Parts)
	assert.Contains(t, sent.SystemInstruction.Parts[0].Text, "Available icons by category")
}

func TestGeminiProviderUpstreamError(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	})

	p := NewGeminiProvider(context.Background(), providerConfig(srv.URL), testOptions(t))
	_, err := p.Generate(context.Background(), "hi", nil)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, model.ErrorKindTransport, perr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Contains(t, perr.Message, "quota")
}

func TestAnthropicProviderGenerate(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test-123", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "test-model",
			"stop_reason":   "end_turn",
			"content":       []map[string]any{{"type": "text", "text": "Hello! What would you like to build?"}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
			"stop_sequence": nil,
		})
	})

	p := NewAnthropicProvider(providerConfig(srv.URL), testOptions(t))
	res, err := p.Generate(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, dsl.Conversational, res.Kind)
	assert.Nil(t, res.DSL)
	assert.Equal(t, "Hello! What would you like to build?", res.Explanation)
}

func TestAnthropicProviderUpstreamError(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	p := NewAnthropicProvider(providerConfig(srv.URL), testOptions(t))
	_, err := p.Generate(context.Background(), "hi", nil)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "invalid x-api-key", perr.Message)
}

func TestBuildSystemPrompt(t *testing.T) {
	vocab, err := icon.DefaultVocabulary()
	require.NoError(t, err)

	prompt := BuildSystemPrompt(vocab)
	assert.Contains(t, prompt, "Node: <Icon> [name=<label>]")
	assert.Contains(t, prompt, "compute: EC2, Lambda")
	assert.Contains(t, prompt, `"dsl"`)
	assert.Contains(t, prompt, "explicitly asks")
}

func TestTurnTextIncludesDiagram(t *testing.T) {
	d := "Node: EC2"
	assert.Equal(t, "ok\n```\nNode: EC2\n```", turnText(model.ConversationTurn{Role: model.RoleAssistant, Text: "ok", DSL: &d}))
	assert.Equal(t, "hi", turnText(model.ConversationTurn{Role: model.RoleUser, Text: "hi"}))
}
