package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的 Store 实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Ledger() LedgerStore { return NewLedgerRepository(s.db) }
func (s *GormStore) Recurring() RecurringStore { return NewRecurringRepository(s.db) }
func (s *GormStore) Outbox() OutboxStore { return NewOutboxRepository(s.db) }
func (s *GormStore) Categories() CategoryStore { return NewCategoryRepository(s.db) }
func (s *GormStore) Accounts() AccountStore { return NewAccountRepository(s.db) }
func (s *GormStore) Savings() SavingStore { return NewSavingRepository(s.db) }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}
