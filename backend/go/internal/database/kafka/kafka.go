package kafka

import (
	"Recall_1.0/backend/go/internal/config"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaClient 持有变更事件主题的 writer 单例实例。
// 本服务只发布事件，不消费，因此没有 reader。
type KafkaClient struct {
	Writer *kafka.Writer
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并确保事件主题存在。
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		if cfg.Topic == "" {
			initErr = fmt.Errorf("未配置 Kafka 事件主题")
			return
		}

		// 1. 建立管理连接，确认主题存在（不存在则创建）。
		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}
		defer conn.Close()

		partitions, err := conn.ReadPartitions()
		if err != nil {
			initErr = fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
			return
		}
		exists := false
		for _, p := range partitions {
			if p.Topic == cfg.Topic {
				exists = true
				break
			}
		}
		if !exists {
			log.Printf("主题 '%s' 不存在，准备创建...", cfg.Topic)
			err = conn.CreateTopics(kafka.TopicConfig{
				Topic:             cfg.Topic,
				NumPartitions:     1, // 使用默认值
				ReplicationFactor: 1, // 使用默认值
			})
			if err != nil {
				initErr = fmt.Errorf("无法创建主题 '%s': %w", cfg.Topic, err)
				return
			}
		}

		// 2. 为事件主题创建 writer。
		writer := kafka.NewWriter(kafka.WriterConfig{
			Brokers:      cfg.Brokers,
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		})

		log.Println("✅ 成功连接到 Kafka!")
		client = &KafkaClient{Writer: writer, Config: cfg}
	})

	return client, initErr
}

// Close 关闭单例的 Kafka writer 连接。
func Close() error {
	if client != nil && client.Writer != nil {
		return client.Writer.Close()
	}
	return nil
}
