package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"
)

// writeEvent 在当前事务里写一条 outbox 消息。
// 消息 key 取业务实体 id，保证同一实体的事件落在同一分区。
func writeEvent(ctx context.Context, tx repository.Store, topic, event string, entityID int64, ownerID string, data map[string]interface{}) error {
	payload := map[string]interface{}{
		"event_id":    idgen.GenerateEventKey(),
		"event":       event,
		"owner_id":    ownerID,
		"entity_id":   entityID,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range data {
		payload[k] = v
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: strconv.FormatInt(entityID, 10),
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
