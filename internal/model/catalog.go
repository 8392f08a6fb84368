package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category 收支分类
type Category struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID   string    `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	Type      string    `gorm:"type:varchar(16);not null" json:"type"`
	Icon      string    `gorm:"type:varchar(32)" json:"icon"`
	Color     string    `gorm:"type:varchar(16)" json:"color"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Category) TableName() string {
	return "categories"
}

// Account 资金账户（现金、银行卡、信用卡）
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID   string          `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	Name      string          `gorm:"type:varchar(64);not null" json:"name"`
	Type      string          `gorm:"type:varchar(32);not null" json:"type"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"type:varchar(8);not null" json:"currency"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
