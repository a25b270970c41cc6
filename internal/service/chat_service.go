// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"costsense-go/internal/model"
	"costsense-go/internal/repository"
	"costsense-go/pkg/log"
	"costsense-go/pkg/metrics"
	"costsense-go/pkg/ratelimit"
)

// DefaultMaxMessageLength 是单条消息允许的最大字符数。
const DefaultMaxMessageLength = 4000

const fallbackMessage = "I couldn't generate a response right now. Please try again, or pick a different provider."

// ChatService 处理一次完整的对话请求：校验、限流、历史与生成。
type ChatService interface {
	// Chat 返回的 error 总是 *model.APIError。限流检查之后 RateStatus 非空。
	Chat(ctx context.Context, client model.ClientInfo, req model.ChatRequest) (*model.ChatReply, *model.RateStatus, error)
}

type chatService struct {
	generation       GenerationService
	limiter          ratelimit.Limiter
	conversationRepo repository.ConversationRepository
	sessions         *SessionResolver
	metrics          *metrics.Metrics
	maxMessageLength int
	now              func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(generation GenerationService, limiter ratelimit.Limiter, conversationRepo repository.ConversationRepository,
	sessions *SessionResolver, m *metrics.Metrics, maxMessageLength int) ChatService {
	if maxMessageLength <= 0 {
		maxMessageLength = DefaultMaxMessageLength
	}
	return &chatService{
		generation:       generation,
		limiter:          limiter,
		conversationRepo: conversationRepo,
		sessions:         sessions,
		metrics:          m,
		maxMessageLength: maxMessageLength,
		now:              time.Now,
	}
}

func (s *chatService) Chat(ctx context.Context, client model.ClientInfo, req model.ChatRequest) (*model.ChatReply, *model.RateStatus, error) {
	// 1. 校验输入，失败时没有任何副作用
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, nil, model.NewInvalidInputError("Message is required.")
	}
	if utf8.RuneCountInString(req.Message) > s.maxMessageLength {
		return nil, nil, model.NewInvalidInputError("Message is too long. The maximum length is " + strconv.Itoa(s.maxMessageLength) + " characters.")
	}
	providerID := req.Provider
	if providerID == "" {
		providerID = s.generation.DefaultProvider()
	}
	if !s.generation.HasProvider(providerID) {
		return nil, nil, model.NewInvalidInputError("Unknown provider: " + providerID + ". Available providers: " + strings.Join(s.generation.Providers(), ", ") + ".")
	}

	// 2. 限流
	allowed, err := s.limiter.Admit(ctx, client.IP, providerID)
	if err != nil {
		// 限流后端不可用时放行，避免整个服务不可用
		log.Warnw("Rate limiter unavailable, admitting request", "provider", providerID, "error", err)
		allowed = true
	}
	status := s.rateStatus(ctx, client.IP, providerID)
	if !allowed {
		s.metrics.ObserveRateLimited(providerID)
		retryAfter := status.ResetAt.Sub(s.now())
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, status, &model.APIError{
			Status:     http.StatusTooManyRequests,
			Code:       model.CodeRateLimited,
			Message:    "Too many requests. Please wait " + strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))) + " seconds before trying again.",
			Provider:   providerID,
			RetryAfter: retryAfter,
		}
	}

	// 3. 读取历史快照，然后追加用户消息
	sessionID := s.sessions.SessionID(client)
	history, err := s.conversationRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, status, s.internalError("Failed to load conversation history", err)
	}
	if req.Regenerate {
		history = withoutLastExchange(history, message)
	} else {
		turn := model.ConversationTurn{Role: model.RoleUser, Text: message, Timestamp: s.now()}
		if err := s.conversationRepo.Append(ctx, sessionID, turn); err != nil {
			return nil, status, s.internalError("Failed to append user message", err)
		}
	}

	// 4. 生成
	result := s.generation.Generate(ctx, message, providerID, history)
	if !result.Success {
		return nil, status, s.generationError(result)
	}

	// 5. 记录助手回复
	turn := model.ConversationTurn{Role: model.RoleAssistant, Text: result.Explanation, Timestamp: result.Timestamp, DSL: result.DSL}
	if err := s.conversationRepo.Append(ctx, sessionID, turn); err != nil {
		// 回复已经生成，历史写入失败只记录日志
		log.Errorw("Failed to append assistant message", "session", sessionID, "error", err)
	}

	reply := &model.ChatReply{
		Reply:          result.Explanation,
		Provider:       result.Provider,
		GenerationTime: result.DurationMs,
	}
	if result.DSL != nil {
		reply.DSL = *result.DSL
	}
	return reply, status, nil
}

func (s *chatService) rateStatus(ctx context.Context, clientID, providerID string) *model.RateStatus {
	status := &model.RateStatus{Limit: s.limiter.Limit(), Remaining: s.limiter.Limit(), ResetAt: s.now()}
	if remaining, err := s.limiter.Remaining(ctx, clientID, providerID); err == nil {
		status.Remaining = remaining
	}
	if resetAt, err := s.limiter.ResetAt(ctx, clientID, providerID); err == nil {
		status.ResetAt = resetAt
	}
	return status
}

func (s *chatService) generationError(result *model.GenerationResult) *model.APIError {
	apiErr := &model.APIError{
		Status:          http.StatusInternalServerError,
		Code:            model.CodeGenerationFailed,
		Message:         result.Error,
		Provider:        result.Provider,
		FallbackMessage: fallbackMessage,
	}
	switch result.ErrorKind {
	case model.ErrorKindConfiguration:
		apiErr.Code = model.CodeProviderNotConfigured
		apiErr.FallbackMessage = ""
	case model.ErrorKindTimeout:
		apiErr.Status = http.StatusRequestTimeout
		apiErr.Code = model.CodeTimeout
	case model.ErrorKindInternal:
		log.Errorw("Generation failed unexpectedly", "provider", result.Provider, "error", result.Error)
		internal := model.NewInternalError()
		internal.Provider = result.Provider
		return internal
	}
	return apiErr
}

func (s *chatService) internalError(msg string, err error) *model.APIError {
	log.Errorw(msg, "error", err, "stacktrace", string(debug.Stack()))
	return model.NewInternalError()
}

// withoutLastExchange 去掉历史末尾被重新生成的那一轮，避免同一条提示词重复发送。
func withoutLastExchange(history []model.ConversationTurn, message string) []model.ConversationTurn {
	end := len(history)
	if end > 0 && history[end-1].Role == model.RoleAssistant {
		end--
	}
	if end > 0 && history[end-1].Role == model.RoleUser && history[end-1].Text == message {
		end--
	}
	return history[:end]
}
