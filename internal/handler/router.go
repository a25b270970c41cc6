package handler

import (
	"costsense-go/internal/middleware"
	"costsense-go/internal/service"
	"costsense-go/pkg/icon"
	"costsense-go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Dependencies 汇集路由需要的服务。
type Dependencies struct {
	Chat          service.ChatService
	Conversations service.ConversationService
	Generation    service.GenerationService
	Sessions      *service.SessionResolver
	Vocabulary    *icon.Vocabulary
	Metrics       *metrics.Metrics
	MetricsPath   string
	MetricsToken  string
}

// NewRouter 创建 gin 引擎并注册所有路由。
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.ClientContext())

	chat := NewChatHandler(deps.Chat)
	conversation := NewConversationHandler(deps.Conversations)
	status := NewStatusHandler(deps.Generation, deps.Conversations, deps.Sessions, deps.Vocabulary)

	apiV1 := r.Group("/api/v1")
	{
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.POST("", chat.Chat)
			chatGroup.GET("/ws", chat.Handle)
			chatGroup.GET("/history", conversation.GetHistory)
			chatGroup.DELETE("/history", conversation.ClearHistory)
		}
		apiV1.GET("/status", status.Status)
		apiV1.GET("/icons", status.Icons)
		apiV1.POST("/session", status.IssueSession)
	}

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, middleware.BearerAuth(deps.MetricsToken), gin.WrapH(deps.Metrics.Handler()))
	}
	return r
}
