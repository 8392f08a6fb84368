package job

import (
	"context"
	"log"
	"time"

	"fintrack/internal/infrastructure/metrics"
	"fintrack/internal/infrastructure/mq"
	"fintrack/internal/model"
	"fintrack/internal/repository"
)

// OutboxSender 轮询 outbox 表，把业务事务里写入的事件投递出去
type OutboxSender struct {
	outbox    repository.OutboxStore
	producer  mq.Producer
	maxRetry  int
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(outbox repository.OutboxStore, producer mq.Producer, maxRetry int) *OutboxSender {
	return &OutboxSender{
		outbox:    outbox,
		producer:  producer,
		maxRetry:  maxRetry,
		stopCh:    make(chan struct{}),
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
			return
		}
		metrics.OutboxMessages.WithLabelValues("sent").Inc()
		return
	}

	log.Printf("[OutboxSender] 消息发送失败: id=%d, topic=%s, err=%v", msg.ID, msg.Topic, err)

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] 标记消息失败状态失败: id=%d, err=%v", msg.ID, err)
			return
		}
		metrics.OutboxMessages.WithLabelValues("failed").Inc()
		log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d", msg.ID)
		return
	}
	metrics.OutboxMessages.WithLabelValues("retry").Inc()
}
