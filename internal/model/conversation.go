// Package model 包含了应用的数据模型定义。
package model

import "time"

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn 代表会话历史中的单条消息，追加后不再修改。
type ConversationTurn struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	DSL       *string   `json:"dsl,omitempty"`
}

// HasDiagram 判断该条消息是否携带了图表 DSL。
func (t ConversationTurn) HasDiagram() bool {
	return t.DSL != nil
}

// GenerationResult 是一次生成调用的归一化结果。
// DSL 为 nil 表示纯对话回复，非 nil 表示生成了图表。
type GenerationResult struct {
	Success     bool      `json:"success"`
	DSL         *string   `json:"dsl"`
	Explanation string    `json:"explanation"`
	Provider    string    `json:"provider"`
	DurationMs  int64     `json:"durationMs"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`

	// ErrorKind 供上层映射 HTTP 状态码，不对外输出。
	ErrorKind ErrorKind `json:"-"`
	// FallbackUsed 表示结果来自默认供应商的兜底调用。
	FallbackUsed bool `json:"-"`
}

// ErrorKind 对生成失败进行分类。
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindConfiguration
	ErrorKindTransport
	ErrorKindContent
	ErrorKindTimeout
	ErrorKindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindConfiguration:
		return "configuration"
	case ErrorKindTransport:
		return "transport"
	case ErrorKindContent:
		return "content"
	case ErrorKindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}
