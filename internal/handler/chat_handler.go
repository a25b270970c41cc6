package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"costsense-go/internal/middleware"
	"costsense-go/internal/model"
	"costsense-go/internal/service"
	"costsense-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理聊天请求，支持普通 HTTP 与 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理 POST /api/v1/chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("Chat: invalid request payload", "error", err)
		writeError(c, model.NewInvalidInputError("Invalid request body."))
		return
	}

	reply, status, err := h.chatService.Chat(c.Request.Context(), middleware.Client(c), req)
	setRateHeaders(c, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// wsFrame 是 WebSocket 上的响应帧，type 为 reply 或 error。
type wsFrame struct {
	Type      string           `json:"type"`
	Reply     *model.ChatReply `json:"data,omitempty"`
	Error     *model.APIError  `json:"error,omitempty"`
	Remaining *int             `json:"remaining,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// Handle 处理 GET /api/v1/chat/ws。每个文本帧是一次 ChatRequest，按顺序逐个回复。
func (h *ChatHandler) Handle(c *gin.Context) {
	client := middleware.Client(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infow("WebSocket connection established", "clientIP", client.IP)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnw("Failed to read from WebSocket", "error", err)
			}
			return
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 非法帧只回复错误，不断开连接
			frame := wsFrame{Type: "error", Error: model.NewInvalidInputError("Invalid request body."), Timestamp: time.Now().UnixMilli()}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			continue
		}

		reply, status, err := h.chatService.Chat(c.Request.Context(), client, req)
		frame := wsFrame{Type: "reply", Reply: reply, Timestamp: time.Now().UnixMilli()}
		if status != nil {
			frame.Remaining = &status.Remaining
		}
		if err != nil {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				apiErr = model.NewInternalError()
			}
			frame.Type = "error"
			frame.Error = apiErr
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Warnw("Failed to write to WebSocket", "error", err)
			return
		}
	}
}
