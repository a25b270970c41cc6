package service

import (
	"context"

	"costsense-go/internal/model"
	"costsense-go/internal/repository"
)

// ConversationService 定义了对话历史的读取与清除。
type ConversationService interface {
	GetHistory(ctx context.Context, client model.ClientInfo) ([]model.ConversationTurn, error)
	ClearHistory(ctx context.Context, client model.ClientInfo) error
	ActiveConversations(ctx context.Context) (int, error)
}

type conversationService struct {
	repo     repository.ConversationRepository
	sessions *SessionResolver
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository, sessions *SessionResolver) ConversationService {
	return &conversationService{repo: repo, sessions: sessions}
}

// GetHistory 返回调用方当前会话的消息历史。
func (s *conversationService) GetHistory(ctx context.Context, client model.ClientInfo) ([]model.ConversationTurn, error) {
	return s.repo.Get(ctx, s.sessions.SessionID(client))
}

// ClearHistory 清除调用方当前会话。
func (s *conversationService) ClearHistory(ctx context.Context, client model.ClientInfo) error {
	return s.repo.Clear(ctx, s.sessions.SessionID(client))
}

// ActiveConversations 返回内存中的会话数量。
func (s *conversationService) ActiveConversations(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
