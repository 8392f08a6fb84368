package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry 收支流水表
//
// RecurringDefinitionID 是指向周期账单的弱引用：
//   - 用户直接记账时为 NULL
//   - 周期账单标记已付时生成的流水一定非 NULL
//   - 周期账单被删除后流水保留（不级联删除），引用变成孤儿
type LedgerEntry struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID               string          `gorm:"type:varchar(36);index:idx_ledger_owner_date,priority:1;not null" json:"owner_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Type                  string          `gorm:"type:varchar(16);not null" json:"type"`
	CategoryID            *int64          `gorm:"index" json:"category_id"`
	AccountID             *int64          `gorm:"index" json:"account_id"`
	TransactionDate       time.Time       `gorm:"type:date;index:idx_ledger_owner_date,priority:2;not null" json:"transaction_date"`
	Note                  string          `gorm:"type:varchar(512)" json:"note"`
	RecurringDefinitionID *int64          `gorm:"index" json:"recurring_definition_id"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LedgerEntry) TableName() string {
	return "transactions"
}
