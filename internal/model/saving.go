package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingFund 储蓄目标
type SavingFund struct {
	ID            int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID       string          `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	Name          string          `gorm:"type:varchar(128);not null" json:"name"`
	TargetAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"target_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"current_amount"`
	Deadline      *time.Time      `gorm:"type:date" json:"deadline"`
	AccountID     *int64          `json:"account_id"`
	Icon          string          `gorm:"type:varchar(32)" json:"icon"`
	Color         string          `gorm:"type:varchar(16)" json:"color"`
	Description   string          `gorm:"type:varchar(512)" json:"description"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SavingFund) TableName() string {
	return "saving_funds"
}

func (f *SavingFund) Completed() bool {
	return f.CurrentAmount.GreaterThanOrEqual(f.TargetAmount)
}

// SavingContribution 储蓄存入记录，只追加
type SavingContribution struct {
	ID               int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID          string          `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	SavingFundID     int64           `gorm:"index;not null" json:"saving_fund_id"`
	TransactionID    *int64          `json:"transaction_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	ContributionDate time.Time       `gorm:"type:date;not null" json:"contribution_date"`
	Note             string          `gorm:"type:varchar(512)" json:"note"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (SavingContribution) TableName() string {
	return "saving_contributions"
}
