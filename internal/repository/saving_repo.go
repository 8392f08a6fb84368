package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SavingRepository struct {
	db *gorm.DB
}

func NewSavingRepository(db *gorm.DB) *SavingRepository {
	return &SavingRepository{db: db}
}

func (r *SavingRepository) CreateFund(ctx context.Context, fund *model.SavingFund) error {
	return r.db.WithContext(ctx).Create(fund).Error
}

func (r *SavingRepository) GetFund(ctx context.Context, ownerID string, id int64) (*model.SavingFund, error) {
	var fund model.SavingFund
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&fund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSavingFundNotFound
		}
		return nil, err
	}
	return &fund, nil
}

func (r *SavingRepository) ListFunds(ctx context.Context, ownerID string) ([]*model.SavingFund, error) {
	var funds []*model.SavingFund
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&funds).Error
	return funds, err
}

func (r *SavingRepository) UpdateFund(ctx context.Context, ownerID string, id int64, u SavingFundUpdate) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.TargetAmount != nil {
		updates["target_amount"] = *u.TargetAmount
	}
	if u.Deadline != nil {
		updates["deadline"] = *u.Deadline
	}
	if u.AccountID != nil {
		updates["account_id"] = *u.AccountID
	}
	if u.Icon != nil {
		updates["icon"] = *u.Icon
	}
	if u.Color != nil {
		updates["color"] = *u.Color
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}

	result := r.db.WithContext(ctx).
		Model(&model.SavingFund{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSavingFundNotFound
	}
	return nil
}

func (r *SavingRepository) DeleteFund(ctx context.Context, ownerID string, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&model.SavingFund{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSavingFundNotFound
	}
	return nil
}

// IncreaseCurrentAmount 在数据库里原子累加
func (r *SavingRepository) IncreaseCurrentAmount(ctx context.Context, ownerID string, id int64, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.SavingFund{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{
			"current_amount": gorm.Expr("current_amount + ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSavingFundNotFound
	}
	return nil
}

func (r *SavingRepository) CreateContribution(ctx context.Context, c *model.SavingContribution) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *SavingRepository) ListContributions(ctx context.Context, ownerID string, fundID int64) ([]*model.SavingContribution, error) {
	var contributions []*model.SavingContribution
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND saving_fund_id = ?", ownerID, fundID).
		Order("contribution_date DESC").
		Order("id DESC").
		Find(&contributions).Error
	return contributions, err
}
