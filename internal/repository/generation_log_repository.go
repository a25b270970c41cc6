package repository

import (
	"context"
	"fmt"

	"costsense-go/internal/model"

	"gorm.io/gorm"
)

// GenerationLogRepository 持久化生成调用的审计记录。
type GenerationLogRepository interface {
	Record(ctx context.Context, entry *model.GenerationLog) error
}

type generationLogRepository struct {
	db *gorm.DB
}

// NewGenerationLogRepository 创建一个新的 GenerationLogRepository 实例。
func NewGenerationLogRepository(db *gorm.DB) GenerationLogRepository {
	return &generationLogRepository{db: db}
}

// Record 插入一条审计记录。
func (r *generationLogRepository) Record(ctx context.Context, entry *model.GenerationLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert generation log: %w", err)
	}
	return nil
}
