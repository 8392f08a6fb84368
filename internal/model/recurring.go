package model

import (
	"time"

	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// 付款状态只有两个方向的迁移：
//
//	unpaid -> paid   生成流水并推进 next_occurrence
//	paid   -> unpaid 删除关联流水（标记撤销），或过期自动重置
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusUnpaid: {PaymentStatusPaid},
	PaymentStatusPaid:   {PaymentStatusUnpaid},
}

func CanTransitionPayment(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPaymentTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// RecurringDefinition 周期账单（固定支出/收入）
//
// 【不变量】
//  1. payment_status = paid   -> 恰好存在一条 recurring_definition_id 指向它的流水
//  2. payment_status = unpaid -> 不存在指向它的流水
//
// NextOccurrence 只保存日期，统一为 UTC 零点。
type RecurringDefinition struct {
	ID             int64              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID        string             `gorm:"type:varchar(36);index:idx_recurring_owner_next,priority:1;not null" json:"owner_id"`
	Name           string             `gorm:"type:varchar(128);not null" json:"name"`
	Amount         decimal.Decimal    `gorm:"type:decimal(18,2);not null" json:"amount"`
	Type           string             `gorm:"type:varchar(16);not null" json:"type"`
	CategoryID     int64              `gorm:"index;not null" json:"category_id"`
	AccountID      *int64             `json:"account_id"`
	Frequency      schedule.Frequency `gorm:"type:varchar(16);not null" json:"frequency"`
	StartDate      time.Time          `gorm:"type:date;not null" json:"start_date"`
	NextOccurrence time.Time          `gorm:"type:date;index:idx_recurring_owner_next,priority:2;index:idx_recurring_status_next,priority:2;not null" json:"next_occurrence"`
	IsActive       bool               `gorm:"not null" json:"is_active"`
	PaymentStatus  string             `gorm:"type:varchar(16);index:idx_recurring_status_next,priority:1;not null;default:unpaid" json:"payment_status"`
	Note           string             `gorm:"type:varchar(512)" json:"note"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RecurringDefinition) TableName() string {
	return "recurring_transactions"
}

func (d *RecurringDefinition) IsPaid() bool {
	return d.PaymentStatus == PaymentStatusPaid
}
