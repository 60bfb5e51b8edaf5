package events

import (
	kafkadb "Recall_1.0/backend/go/internal/database/kafka"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// 变更事件类型。下游的广播服务消费这些事件，
// 再按用户的 broadcastList 分发通知。
const (
	KindRelationUpdated   = "relation.updated"
	KindRelationDeleted   = "relation.deleted"
	KindConversationAdded = "conversation.added"
	KindReminderAdded     = "reminder.added"
	KindReminderDeleted   = "reminder.deleted"
)

// Event 是发布到事件主题的一条变更记录。
type Event struct {
	Kind      string                 `json:"kind"`
	Email     string                 `json:"email"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Publisher defines the interface for publishing mutation events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// KafkaPublisher 封装了向 Kafka 发送变更事件的逻辑。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建一个新的 KafkaPublisher 实例。
func NewKafkaPublisher(client *kafkadb.KafkaClient) *KafkaPublisher {
	return &KafkaPublisher{writer: client.Writer}
}

// Publish 将事件序列化为 JSON 并发送到 Kafka，以用户 email 作为分区键，
// 保证同一用户的事件保持顺序。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Email),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}
