package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 事件类型，写在消息 payload 的 event 字段
const (
	EventLedgerCreated      = "ledger.created"
	EventLedgerUpdated      = "ledger.updated"
	EventLedgerDeleted      = "ledger.deleted"
	EventRecurringPaid      = "recurring.paid"
	EventRecurringUnpaid    = "recurring.unpaid"
	EventRecurringAutoReset = "recurring.auto_reset"
)

// OutboxMessage 与业务数据同事务写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
