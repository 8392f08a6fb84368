package mq

import (
	"fmt"
	"log"
	"sync"

	"fintrack/internal/config"

	"github.com/IBM/sarama"
)

// Producer 消息投递，OutboxSender 依赖这个接口
type Producer interface {
	SendMessage(topic, key, value string) error
	Close() error
}

// KafkaProducer 基于 sarama 同步生产者
type KafkaProducer struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer 初始化 Kafka 生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (*KafkaProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Println("Kafka 生产者创建成功")
	return NewKafkaProducerFrom(producer), nil
}

// NewKafkaProducerFrom 包装已有的 SyncProducer，测试时传入 mocks.SyncProducer
func NewKafkaProducerFrom(producer sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{producer: producer}
}

// SendMessage 发送消息到 Kafka，同一周期账单的事件用相同 key 保证分区内有序
func (p *KafkaProducer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

// LogProducer 未启用 Kafka 时使用，只打印日志
type LogProducer struct {
	mu   sync.Mutex
	sent int
}

func NewLogProducer() *LogProducer {
	return &LogProducer{}
}

func (p *LogProducer) SendMessage(topic, key, value string) error {
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
	log.Printf("[LogProducer] topic=%s key=%s payload=%s", topic, key, value)
	return nil
}

// Sent 已投递的消息数
func (p *LogProducer) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *LogProducer) Close() error { return nil }
