package middleware

import (
	"costsense-go/internal/model"

	"github.com/gin-gonic/gin"
)

// SessionTokenHeader 携带 POST /api/v1/session 签发的会话令牌。
const SessionTokenHeader = "X-Session-Token"

const clientKey = "client"

// ClientContext 创建一个 Gin 中间件，提取会话与限流所需的连接元数据并存入上下文。
// 令牌本身不在这里校验，无效令牌由服务层忽略。
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := model.ClientInfo{
			IP:             c.ClientIP(),
			UserAgent:      c.GetHeader("User-Agent"),
			AcceptLanguage: c.GetHeader("Accept-Language"),
			SessionToken:   c.GetHeader(SessionTokenHeader),
		}
		if client.SessionToken == "" {
			// 浏览器无法为 WebSocket 设置自定义头，允许通过查询参数传入
			client.SessionToken = c.Query("token")
		}
		c.Set(clientKey, client)
		c.Next()
	}
}

// Client 返回 ClientContext 存入的连接元数据。未经过该中间件时现场提取。
func Client(c *gin.Context) model.ClientInfo {
	if v, ok := c.Get(clientKey); ok {
		if client, ok := v.(model.ClientInfo); ok {
			return client
		}
	}
	return model.ClientInfo{
		IP:             c.ClientIP(),
		UserAgent:      c.GetHeader("User-Agent"),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		SessionToken:   c.GetHeader(SessionTokenHeader),
	}
}
