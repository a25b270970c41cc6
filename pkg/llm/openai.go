package llm

import (
	"context"
	"errors"
	"net/http"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider 通过 Chat Completions 接口生成图表。
type OpenAIProvider struct {
	base
	client openai.Client
}

// NewOpenAIProvider 创建 OpenAI 供应商。SDK 自身的重试被关闭，失败交由网关兜底。
func NewOpenAIProvider(cfg config.ProviderConfig, opts Options) *OpenAIProvider {
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
	return &OpenAIProvider{
		base:   newBase(ProviderOpenAI, "OpenAI", cfg, opts),
		client: openai.NewClient(reqOpts...),
	}
}

// Generate 调用 Chat Completions 接口。
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, history []model.ConversationTurn) (*dsl.Result, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(p.system)}
	for _, t := range p.window(history) {
		if t.Role == model.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turnText(t)))
		} else {
			messages = append(messages, openai.UserMessage(turnText(t)))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.cfg.Model),
		Messages: messages,
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = openai.Float(p.cfg.Temperature)
	}
	if p.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.cfg.MaxTokens))
	}

	return p.run(ctx, func(ctx context.Context) (string, error) {
		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				msg := apiErr.Message
				if msg == "" {
					msg = apiErr.RawJSON()
				}
				if msg == "" {
					msg = http.StatusText(apiErr.StatusCode)
				}
				return "", &ProviderError{
					Provider:   p.id,
					Kind:       model.ErrorKindTransport,
					StatusCode: apiErr.StatusCode,
					Message:    msg,
					Err:        err,
				}
			}
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", nil
		}
		return completion.Choices[0].Message.Content, nil
	})
}
