package handler

import (
	"errors"
	"net/http"
	"time"

	"costsense-go/internal/middleware"
	"costsense-go/internal/model"
	"costsense-go/internal/service"
	"costsense-go/pkg/icon"
	"costsense-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// StatusHandler 提供供应商状态、图标词表和会话令牌签发接口。
type StatusHandler struct {
	generation    service.GenerationService
	conversations service.ConversationService
	sessions      *service.SessionResolver
	vocab         *icon.Vocabulary
}

// NewStatusHandler 创建一个新的 StatusHandler。
func NewStatusHandler(generation service.GenerationService, conversations service.ConversationService,
	sessions *service.SessionResolver, vocab *icon.Vocabulary) *StatusHandler {
	return &StatusHandler{generation: generation, conversations: conversations, sessions: sessions, vocab: vocab}
}

// Status 返回各供应商的配置状态。
func (h *StatusHandler) Status(c *gin.Context) {
	active, err := h.conversations.ActiveConversations(c.Request.Context())
	if err != nil {
		log.Warnw("Failed to count conversations", "error", err)
	}
	c.JSON(http.StatusOK, model.StatusReport{
		Providers:           h.generation.Status(c.Request.Context()),
		DefaultProvider:     h.generation.DefaultProvider(),
		ActiveConversations: active,
	})
}

// Icons 返回图标分类与标识。
func (h *StatusHandler) Icons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.vocab.Categories()})
}

// IssueSession 签发新的会话令牌。未配置密钥时返回 404。
func (h *StatusHandler) IssueSession(c *gin.Context) {
	signed, claims, err := h.sessions.Issue()
	if errors.Is(err, service.ErrSessionTokensDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session tokens are not enabled.", "code": "NOT_FOUND"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     signed,
		"expiresAt": claims.ExpiresAt.Time.Format(time.RFC3339),
		"header":    middleware.SessionTokenHeader,
	})
}
