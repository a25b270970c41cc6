package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"

	"google.golang.org/genai"
)

// GeminiProvider 通过 Gemini API 生成图表。
type GeminiProvider struct {
	base
	client  *genai.Client
	initErr error
}

// NewGeminiProvider 创建 Gemini 供应商。未配置凭证时不创建客户端。
func NewGeminiProvider(ctx context.Context, cfg config.ProviderConfig, opts Options) *GeminiProvider {
	p := &GeminiProvider{base: newBase(ProviderGemini, "Gemini", cfg, opts)}
	if !p.IsConfigured() {
		return p
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	p.client, p.initErr = genai.NewClient(ctx, cc)
	return p
}

// ValidateConfiguration 在通用检查之外还会报告客户端初始化错误。
func (p *GeminiProvider) ValidateConfiguration(ctx context.Context) error {
	if err := p.base.ValidateConfiguration(ctx); err != nil {
		return err
	}
	if p.initErr != nil {
		return &ProviderError{Provider: p.id, Kind: model.ErrorKindConfiguration, Message: p.initErr.Error(), Err: p.initErr}
	}
	return nil
}

// Generate 调用 GenerateContent 接口，历史中的助手消息使用 model 角色。
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, history []model.ConversationTurn) (*dsl.Result, error) {
	if p.initErr != nil {
		return nil, p.ValidateConfiguration(ctx)
	}

	var contents []*genai.Content
	for _, t := range p.window(history) {
		role := genai.Role(genai.RoleUser)
		if t.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turnText(t), role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if p.cfg.Temperature > 0 {
		temp := float32(p.cfg.Temperature)
		gc.Temperature = &temp
	}
	if p.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}

	return p.run(ctx, func(ctx context.Context) (string, error) {
		if p.client == nil {
			return "", configurationError(p.id, "client is not initialized")
		}
		resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, gc)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				msg := apiErr.Message
				if msg == "" {
					msg = http.StatusText(apiErr.Code)
				}
				if apiErr.Status != "" {
					msg = fmt.Sprintf("%s: %s", apiErr.Status, msg)
				}
				return "", &ProviderError{
					Provider:   p.id,
					Kind:       model.ErrorKindTransport,
					StatusCode: apiErr.Code,
					Message:    msg,
					Err:        err,
				}
			}
			return "", err
		}
		return resp.Text(), nil
	})
}
