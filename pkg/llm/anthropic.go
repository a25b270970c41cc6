package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider 通过 Messages 接口生成图表，只有配置了凭证才会注册。
type AnthropicProvider struct {
	base
	client anthropic.Client
}

// NewAnthropicProvider 创建 Anthropic 供应商。
func NewAnthropicProvider(cfg config.ProviderConfig, opts Options) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &AnthropicProvider{
		base:   newBase(ProviderAnthropic, "Anthropic", cfg, opts),
		client: anthropic.NewClient(reqOpts...),
	}
}

// Generate 调用 Messages 接口。
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, history []model.ConversationTurn) (*dsl.Result, error) {
	var messages []anthropic.MessageParam
	for _, t := range p.window(history) {
		block := anthropic.NewTextBlock(turnText(t))
		if t.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	maxTokens := int64(p.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: p.system}},
		Messages:  messages,
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(p.cfg.Temperature)
	}

	return p.run(ctx, func(ctx context.Context) (string, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) {
				return "", &ProviderError{
					Provider:   p.id,
					Kind:       model.ErrorKindTransport,
					StatusCode: apiErr.StatusCode,
					Message:    anthropicMessage(apiErr.RawJSON(), apiErr.StatusCode),
					Err:        err,
				}
			}
			return "", err
		}
		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), nil
	})
}

// anthropicMessage 从错误响应体中取出 error.message。
func anthropicMessage(raw string, status int) string {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if raw != "" {
		return raw
	}
	return http.StatusText(status)
}
