// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher 把生成事件发布到 Kafka，供离线统计使用。
type EventPublisher struct {
	writer messageWriter
}

// NewEventPublisher 创建异步写入的 Kafka 生产者。Brokers 以逗号分隔。
func NewEventPublisher(cfg config.KafkaConfig) *EventPublisher {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warnw("Failed to deliver generation events", "count", len(messages), "error", err)
			}
		},
	}
	log.Infow("Kafka 生产者初始化成功", "brokers", brokers, "topic", cfg.Topic)
	return &EventPublisher{writer: writer}
}

// Record 发布一条生成事件，以供应商作为消息键。
func (p *EventPublisher) Record(ctx context.Context, entry *model.GenerationLog) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(entry.Provider), Value: value}); err != nil {
		return fmt.Errorf("failed to publish generation event: %w", err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
