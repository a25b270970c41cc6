package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"costsense-go/internal/model"
	"costsense-go/pkg/llm"
	"costsense-go/pkg/log"
	"costsense-go/pkg/metrics"
)

// 对外展示的错误文案
const (
	msgAuthentication = "Authentication with the AI provider failed. Please check the provider configuration."
	msgBusy           = "The AI provider is currently busy. Please try again in a moment."
	msgConnectivity   = "Could not reach the AI provider. Please check your connection and try again."
	msgGeneric        = "The AI provider returned an error. Please try again."
	maxErrorLength    = 200
)

// GenerationRecorder 接收每次生成调用的元数据。
type GenerationRecorder interface {
	Record(ctx context.Context, entry *model.GenerationLog) error
}

// GenerationService 负责选择供应商、单跳兜底与错误脱敏。
type GenerationService interface {
	Generate(ctx context.Context, prompt, providerID string, history []model.ConversationTurn) *model.GenerationResult
	HasProvider(providerID string) bool
	DefaultProvider() string
	Providers() []string
	Status(ctx context.Context) map[string]model.ProviderStatus
}

type generationService struct {
	providers map[string]llm.Provider
	order     []string
	defaultID string
	metrics   *metrics.Metrics
	recorders []GenerationRecorder
	now       func() time.Time
}

// NewGenerationService 创建一个新的 GenerationService。providers 中的第一个同名供应商生效。
func NewGenerationService(providers []llm.Provider, defaultID string, m *metrics.Metrics, recorders ...GenerationRecorder) GenerationService {
	s := &generationService{
		providers: make(map[string]llm.Provider, len(providers)),
		defaultID: defaultID,
		metrics:   m,
		recorders: recorders,
		now:       time.Now,
	}
	for _, p := range providers {
		if _, dup := s.providers[p.Name()]; dup {
			continue
		}
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
	}
	return s
}

func (s *generationService) HasProvider(providerID string) bool {
	_, ok := s.providers[providerID]
	return ok
}

func (s *generationService) DefaultProvider() string {
	return s.defaultID
}

func (s *generationService) Providers() []string {
	return append([]string(nil), s.order...)
}

// Generate 调用请求的供应商；非默认供应商失败时按顺序重试一次默认供应商。
// 未知或未配置的供应商直接返回配置错误，不做兜底。
func (s *generationService) Generate(ctx context.Context, prompt, providerID string, history []model.ConversationTurn) *model.GenerationResult {
	start := s.now()

	p, ok := s.providers[providerID]
	if !ok {
		return s.fail(ctx, start, providerID, providerID, false, model.ErrorKindConfiguration, "Unknown provider: "+providerID)
	}
	if !p.IsConfigured() {
		return s.fail(ctx, start, providerID, providerID, false, model.ErrorKindConfiguration, p.DisplayName()+" is not configured.")
	}

	res, err := s.call(ctx, p, prompt, history)
	if err == nil {
		return s.succeed(ctx, start, providerID, p, res, false)
	}
	log.Warnw("Provider generation failed", "provider", providerID, "kind", errorKind(err).String(), "error", Redact(err.Error()))

	if fallback, ok := s.fallbackFor(ctx, providerID); ok {
		s.metrics.ObserveFallback(providerID, fallback.Name())
		log.Infow("Falling back to default provider", "from", providerID, "to", fallback.Name())

		res, fbErr := s.call(ctx, fallback, prompt, history)
		if fbErr == nil {
			return s.succeed(ctx, start, providerID, fallback, res, true)
		}
		log.Warnw("Fallback generation failed", "provider", fallback.Name(), "kind", errorKind(fbErr).String(), "error", Redact(fbErr.Error()))
		return s.fail(ctx, start, providerID, providerID, true, errorKind(err), SanitizeError(err))
	}

	return s.fail(ctx, start, providerID, providerID, false, errorKind(err), SanitizeError(err))
}

func (s *generationService) call(ctx context.Context, p llm.Provider, prompt string, history []model.ConversationTurn) (*model.GenerationResult, error) {
	callStart := s.now()
	res, err := p.Generate(ctx, prompt, history)
	kind := model.ErrorKindNone
	if err != nil {
		kind = errorKind(err)
	}
	s.metrics.ObserveGeneration(p.Name(), err == nil, kind.String(), s.now().Sub(callStart))
	if err != nil {
		return nil, err
	}
	return &model.GenerationResult{DSL: res.DSL, Explanation: res.Explanation}, nil
}

// fallbackFor 返回可用于兜底的默认供应商。默认供应商自身失败或请求已取消时不兜底。
func (s *generationService) fallbackFor(ctx context.Context, providerID string) (llm.Provider, bool) {
	if providerID == s.defaultID || ctx.Err() != nil {
		return nil, false
	}
	p, ok := s.providers[s.defaultID]
	if !ok || !p.IsConfigured() {
		return nil, false
	}
	return p, true
}

func (s *generationService) succeed(ctx context.Context, start time.Time, requested string, p llm.Provider, res *model.GenerationResult, fallback bool) *model.GenerationResult {
	res.Success = true
	res.Provider = p.Name()
	res.FallbackUsed = fallback
	res.Timestamp = s.now()
	res.DurationMs = res.Timestamp.Sub(start).Milliseconds()
	s.record(ctx, requested, res)
	return res
}

func (s *generationService) fail(ctx context.Context, start time.Time, requested, provider string, fallback bool, kind model.ErrorKind, msg string) *model.GenerationResult {
	now := s.now()
	res := &model.GenerationResult{
		Success:      false,
		Provider:     provider,
		Error:        msg,
		ErrorKind:    kind,
		FallbackUsed: fallback,
		Timestamp:    now,
		DurationMs:   now.Sub(start).Milliseconds(),
	}
	s.record(ctx, requested, res)
	return res
}

func (s *generationService) record(ctx context.Context, requested string, res *model.GenerationResult) {
	if len(s.recorders) == 0 {
		return
	}
	entry := &model.GenerationLog{
		RequestID:         RequestIDFromContext(ctx),
		RequestedProvider: requested,
		Provider:          res.Provider,
		Success:           res.Success,
		FallbackUsed:      res.FallbackUsed,
		HasDiagram:        res.DSL != nil,
		DurationMs:        res.DurationMs,
	}
	if !res.Success {
		entry.ErrorKind = res.ErrorKind.String()
	}
	for _, r := range s.recorders {
		if err := r.Record(ctx, entry); err != nil {
			log.Warnw("Failed to record generation", "error", err)
		}
	}
}

// Status 报告每个已注册供应商的配置状态，不发起网络请求。
func (s *generationService) Status(ctx context.Context) map[string]model.ProviderStatus {
	out := make(map[string]model.ProviderStatus, len(s.providers))
	for id, p := range s.providers {
		st := model.ProviderStatus{Configured: p.IsConfigured()}
		if err := p.ValidateConfiguration(ctx); err != nil {
			st.Error = SanitizeError(err)
			var perr *llm.ProviderError
			if errors.As(err, &perr) && perr.Kind == model.ErrorKindConfiguration {
				st.Error = perr.Message
			}
		} else {
			st.Available = st.Configured
		}
		out[id] = st
	}
	return out
}

func errorKind(err error) model.ErrorKind {
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindTimeout
	}
	return model.ErrorKindInternal
}

// SanitizeError 把供应商错误映射为可以展示给用户的文案。
// 无法归类的错误保留原文，但会去掉凭证和上游响应体。
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	raw := err.Error()
	status := 0
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		raw = perr.Message
		status = perr.StatusCode
	}
	lower := strings.ToLower(raw)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		containsAny(lower, "api key", "api_key", "apikey", "unauthorized", "unauthenticated", "authentication"):
		return msgAuthentication
	case status == http.StatusTooManyRequests ||
		containsAny(lower, "quota", "rate limit", "ratelimit", "rate_limit", "resource_exhausted", "too many requests", "overloaded"):
		return msgBusy
	case errorKind(err) == model.ErrorKindTimeout ||
		containsAny(lower, "network", "timeout", "timed out", "deadline", "connection refused", "no such host"):
		return msgConnectivity
	}

	msg := Redact(payloadPattern.ReplaceAllString(raw, ""))
	msg = strings.TrimRight(strings.TrimSpace(msg), ":,")
	if msg == "" {
		return msgGeneric
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength] + "..."
	}
	return msg
}

var (
	payloadPattern = regexp.MustCompile(`(?s)\{.*\}`)
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[A-Za-z0-9_\-]{6,}`),
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{10,}`),
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
		regexp.MustCompile(`(?i)\b(api[_-]?key|key|token|secret|password)=\S+`),
		regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`),
	}
)

// Redact 替换文本中形似凭证的片段。
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
