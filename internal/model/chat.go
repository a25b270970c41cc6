package model

import (
	"fmt"
	"net/http"
	"time"
)

// ChatRequest 是聊天接口的请求体。
type ChatRequest struct {
	Message    string `json:"message"`
	Provider   string `json:"provider,omitempty"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// ChatReply 是聊天接口成功时的响应体。
type ChatReply struct {
	Reply          string `json:"reply"`
	Provider       string `json:"provider"`
	GenerationTime int64  `json:"generationTime"`
	DSL            string `json:"dsl,omitempty"`
}

// ClientInfo 描述一次请求的连接元数据，用于推导会话标识和限流键。
type ClientInfo struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	SessionToken   string
}

// RateStatus 用于填充限流响应头。
type RateStatus struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// 错误码
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeRateLimited           = "RATE_LIMITED"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeGenerationFailed      = "GENERATION_FAILED"
	CodeTimeout               = "TIMEOUT"
	CodeInternal              = "INTERNAL_ERROR"
)

// APIError 是面向调用方的结构化错误，消息均已脱敏。
type APIError struct {
	Status          int           `json:"-"`
	Code            string        `json:"code"`
	Message         string        `json:"error"`
	Provider        string        `json:"provider,omitempty"`
	FallbackMessage string        `json:"fallbackMessage,omitempty"`
	RetryAfter      time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// NewInvalidInputError 创建一个输入校验错误。
func NewInvalidInputError(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: CodeInvalidInput, Message: msg}
}

// NewInternalError 创建一个对外只暴露通用信息的内部错误。
func NewInternalError() *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "An unexpected error occurred. Please try again later.",
	}
}

// ProviderStatus 描述单个供应商的可用状态。
type ProviderStatus struct {
	Available  bool   `json:"available"`
	Configured bool   `json:"configured"`
	Error      string `json:"error,omitempty"`
}

// StatusReport 是状态查询接口的响应体。
type StatusReport struct {
	Providers           map[string]ProviderStatus `json:"providers"`
	DefaultProvider     string                    `json:"defaultProvider"`
	ActiveConversations int                       `json:"activeConversations"`
}
