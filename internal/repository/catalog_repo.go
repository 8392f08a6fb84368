package repository

import (
	"context"

	"fintrack/internal/model"

	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) CreateBatch(ctx context.Context, categories []*model.Category) error {
	if len(categories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&categories).Error
}

func (r *CategoryRepository) List(ctx context.Context, ownerID, typ string) ([]*model.Category, error) {
	var categories []*model.Category
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if typ != "" {
		query = query.Where("type = ?", typ)
	}
	err := query.Order("id ASC").Find(&categories).Error
	return categories, err
}

func (r *CategoryRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Category{}).Where("owner_id = ?", ownerID).Count(&total).Error
	return total, err
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) CreateBatch(ctx context.Context, accounts []*model.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&accounts).Error
}

func (r *AccountRepository) List(ctx context.Context, ownerID string) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id ASC").Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Where("owner_id = ?", ownerID).Count(&total).Error
	return total, err
}
