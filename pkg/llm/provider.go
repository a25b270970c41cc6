// Package llm adapts the supported model vendors to a single diagram generation interface.
package llm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"
	"costsense-go/pkg/icon"
)

// 供应商标识
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// 默认值
const (
	DefaultTimeout      = 30 * time.Second
	DefaultHistoryTurns = 6
)

// Provider 是单个模型供应商的能力接口。
type Provider interface {
	// Name 返回供应商标识，例如 "openai"。
	Name() string
	// DisplayName 返回用于展示的名称。
	DisplayName() string
	// IsConfigured 只检查凭证是否存在，不发起网络请求。
	IsConfigured() bool
	// ValidateConfiguration 检查配置是否完整可用。
	ValidateConfiguration(ctx context.Context) error
	// Generate 发送提示词与最近的历史，并解析模型输出。
	Generate(ctx context.Context, prompt string, history []model.ConversationTurn) (*dsl.Result, error)
}

// Options 是所有供应商共享的依赖。
type Options struct {
	Resolver     *icon.Resolver
	Timeout      time.Duration
	HistoryTurns int
	HTTPClient   *http.Client
}

// base 实现各供应商共同的超时、历史窗口与结果解析逻辑。
type base struct {
	id           string
	display      string
	cfg          config.ProviderConfig
	timeout      time.Duration
	historyTurns int
	system       string
	interpreter  *dsl.Interpreter
}

func newBase(id, display string, cfg config.ProviderConfig, opts Options) base {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	turns := opts.HistoryTurns
	if turns <= 0 {
		turns = DefaultHistoryTurns
	}
	return base{
		id:           id,
		display:      display,
		cfg:          cfg,
		timeout:      timeout,
		historyTurns: turns,
		system:       BuildSystemPrompt(opts.Resolver.Vocabulary()),
		interpreter:  dsl.NewInterpreter(opts.Resolver, display),
	}
}

func (b *base) Name() string {
	return b.id
}

func (b *base) DisplayName() string {
	return b.display
}

func (b *base) IsConfigured() bool {
	return strings.TrimSpace(b.cfg.APIKey) != ""
}

func (b *base) ValidateConfiguration(_ context.Context) error {
	if !b.IsConfigured() {
		return configurationError(b.id, "API key is not configured")
	}
	if strings.TrimSpace(b.cfg.Model) == "" {
		return configurationError(b.id, "model is not configured")
	}
	if b.cfg.BaseURL != "" {
		if u, err := url.Parse(b.cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return configurationError(b.id, "base URL is invalid")
		}
	}
	return nil
}

// window 返回最近的 historyTurns 条历史。
func (b *base) window(history []model.ConversationTurn) []model.ConversationTurn {
	if len(history) > b.historyTurns {
		return history[len(history)-b.historyTurns:]
	}
	return history
}

// run 在超时控制下执行一次供应商调用，并把结果交给解析器。
func (b *base) run(ctx context.Context, call func(ctx context.Context) (string, error)) (*dsl.Result, error) {
	if !b.IsConfigured() {
		return nil, configurationError(b.id, "API key is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	text, err := call(callCtx)
	if err != nil {
		return nil, b.classify(callCtx, err)
	}

	result, err := b.interpreter.Interpret(text)
	if err != nil {
		return nil, &ProviderError{Provider: b.id, Kind: model.ErrorKindContent, Message: err.Error(), Err: err}
	}
	return &result, nil
}

func (b *base) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{
			Provider: b.id,
			Kind:     model.ErrorKindTimeout,
			Message:  "request timeout after " + b.timeout.String(),
			Err:      err,
		}
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{Provider: b.id, Kind: model.ErrorKindTransport, Message: err.Error(), Err: err}
}
