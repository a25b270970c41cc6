// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"costsense-go/internal/model"
	"costsense-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// setRateHeaders 写入限流响应头。
func setRateHeaders(c *gin.Context, status *model.RateStatus) {
	if status == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(status.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(status.ResetAt.Unix(), 10))
}

// writeError 把服务层错误写成统一的 JSON 错误体。
func writeError(c *gin.Context, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		log.Errorw("Unexpected handler error", "path", c.Request.URL.Path, "error", err)
		apiErr = model.NewInternalError()
	}
	if apiErr.Status == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(apiErr.RetryAfter.Seconds()))))
	}
	c.JSON(apiErr.Status, apiErr)
}
