package handler

import (
	"net/http"

	"costsense-go/internal/middleware"
	"costsense-go/internal/service"
	"costsense-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetHistory 处理获取调用方对话历史的请求。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	history, err := h.service.GetHistory(c.Request.Context(), middleware.Client(c))
	if err != nil {
		log.Errorw("Failed to retrieve conversation history", "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// ClearHistory 处理清除调用方对话历史的请求。
func (h *ConversationHandler) ClearHistory(c *gin.Context) {
	if err := h.service.ClearHistory(c.Request.Context(), middleware.Client(c)); err != nil {
		log.Errorw("Failed to clear conversation history", "error", err)
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
