package repository

import (
	"context"
	"errors"
	"strings"

	"fintrack/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) GetByID(ctx context.Context, ownerID string, id int64) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) Update(ctx context.Context, entry *model.LedgerEntry) error {
	result := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND owner_id = ?", entry.ID, entry.OwnerID).
		Updates(map[string]interface{}{
			"amount":           entry.Amount,
			"type":             entry.Type,
			"category_id":      entry.CategoryID,
			"account_id":       entry.AccountID,
			"transaction_date": entry.TransactionDate,
			"note":             entry.Note,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *LedgerRepository) filtered(ctx context.Context, ownerID string, f LedgerFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("owner_id = ?", ownerID)

	if f.DateFrom != nil {
		query = query.Where("transaction_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		query = query.Where("transaction_date <= ?", *f.DateTo)
	}
	if f.CategoryID != nil {
		query = query.Where("category_id = ?", *f.CategoryID)
	}
	if f.AccountID != nil {
		query = query.Where("account_id = ?", *f.AccountID)
	}
	if f.RecurringID != nil {
		query = query.Where("recurring_definition_id = ?", *f.RecurringID)
	}
	if f.MinAmount != nil {
		query = query.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		query = query.Where("amount <= ?", *f.MaxAmount)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Search != "" {
		query = query.Where("LOWER(note) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	return query
}

func (r *LedgerRepository) List(ctx context.Context, ownerID string, f LedgerFilter) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	query := r.filtered(ctx, ownerID, f).Order("transaction_date DESC").Order("id DESC")
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) Count(ctx context.Context, ownerID string, f LedgerFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, ownerID, f).Count(&total).Error
	return total, err
}

func (r *LedgerRepository) DeleteByIDs(ctx context.Context, ownerID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&model.LedgerEntry{})
	return result.RowsAffected, result.Error
}

func (r *LedgerRepository) DeleteByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND recurring_definition_id = ?", ownerID, recurringID).
		Delete(&model.LedgerEntry{})
	return result.RowsAffected, result.Error
}

func (r *LedgerRepository) CountByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("owner_id = ? AND recurring_definition_id = ?", ownerID, recurringID).
		Count(&total).Error
	return total, err
}

func (r *LedgerRepository) UpdateCategory(ctx context.Context, ownerID string, ids []int64, categoryID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Update("category_id", categoryID)
	return result.RowsAffected, result.Error
}
