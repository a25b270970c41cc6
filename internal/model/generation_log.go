package model

import "time"

// GenerationLog 记录一次生成调用的元数据，不包含任何对话内容。
// 同一结构既写入 generation_logs 表，也作为 Kafka 事件发布。
type GenerationLog struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id,omitempty"`
	RequestID         string    `gorm:"type:varchar(64)" json:"requestId,omitempty"`
	RequestedProvider string    `gorm:"type:varchar(32);not null" json:"requestedProvider"`
	Provider          string    `gorm:"type:varchar(32);not null" json:"provider"`
	Success           bool      `gorm:"not null" json:"success"`
	FallbackUsed      bool      `gorm:"not null;default:false" json:"fallbackUsed"`
	HasDiagram        bool      `gorm:"not null;default:false" json:"hasDiagram"`
	ErrorKind         string    `gorm:"type:varchar(32)" json:"errorKind,omitempty"`
	DurationMs        int64     `gorm:"not null" json:"durationMs"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (GenerationLog) TableName() string {
	return "generation_logs"
}
