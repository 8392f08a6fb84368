package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"fintrack/internal/model"

	"gorm.io/gorm"
)

type RecurringRepository struct {
	db *gorm.DB
}

func NewRecurringRepository(db *gorm.DB) *RecurringRepository {
	return &RecurringRepository{db: db}
}

func (r *RecurringRepository) Create(ctx context.Context, def *model.RecurringDefinition) error {
	return r.db.WithContext(ctx).Create(def).Error
}

func (r *RecurringRepository) GetByID(ctx context.Context, ownerID string, id int64) (*model.RecurringDefinition, error) {
	var def model.RecurringDefinition
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecurringNotFound
		}
		return nil, err
	}
	return &def, nil
}

func (r *RecurringRepository) List(ctx context.Context, ownerID string, f RecurringFilter) ([]*model.RecurringDefinition, error) {
	var defs []*model.RecurringDefinition

	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if f.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	if f.Active != nil {
		query = query.Where("is_active = ?", *f.Active)
	}
	if f.PaymentStatus != "" {
		query = query.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}

	err := query.Order("next_occurrence ASC").Order("id ASC").Find(&defs).Error
	return defs, err
}

func (r *RecurringRepository) Update(ctx context.Context, ownerID string, id int64, u RecurringUpdate) error {
	updates := map[string]interface{}{}
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Amount != nil {
		updates["amount"] = *u.Amount
	}
	if u.Type != nil {
		updates["type"] = *u.Type
	}
	if u.CategoryID != nil {
		updates["category_id"] = *u.CategoryID
	}
	if u.AccountID != nil {
		updates["account_id"] = *u.AccountID
	}
	if u.Frequency != nil {
		updates["frequency"] = *u.Frequency
	}
	if u.NextOccurrence != nil {
		updates["next_occurrence"] = *u.NextOccurrence
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.Note != nil {
		updates["note"] = *u.Note
	}
	// updated_at 总会变化，RowsAffected 为 0 只可能是记录不存在
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.RecurringDefinition{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecurringNotFound
	}
	return nil
}

// TransitionPayment 条件更新付款状态
//
// 【关键点】WHERE 里带上 payment_status = from，相当于一次 CAS：
// 两个请求同时把同一账单标记为已付时，只有一个能更新成功，
// 另一个拿到 ErrPaymentStatusInvalid，所在事务回滚，不会生成第二条流水。
func (r *RecurringRepository) TransitionPayment(ctx context.Context, ownerID string, id int64, from, to string, nextOccurrence *time.Time) error {
	if !model.CanTransitionPayment(from, to) {
		return ErrPaymentStatusInvalid
	}

	updates := map[string]interface{}{
		"payment_status": to,
		"updated_at":     time.Now(),
	}
	if nextOccurrence != nil {
		updates["next_occurrence"] = *nextOccurrence
	}

	result := r.db.WithContext(ctx).
		Model(&model.RecurringDefinition{}).
		Where("id = ? AND owner_id = ? AND payment_status = ?", id, ownerID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusInvalid
	}
	return nil
}

func (r *RecurringRepository) Delete(ctx context.Context, ownerID string, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&model.RecurringDefinition{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecurringNotFound
	}
	return nil
}

func (r *RecurringRepository) ListStalePaid(ctx context.Context, ownerID string, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	var defs []*model.RecurringDefinition
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND id > ? AND payment_status = ? AND next_occurrence < ?", ownerID, afterID, model.PaymentStatusPaid, today).
		Order("id ASC").
		Limit(limit).
		Find(&defs).Error
	return defs, err
}

func (r *RecurringRepository) ListAllStalePaid(ctx context.Context, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	var defs []*model.RecurringDefinition
	err := r.db.WithContext(ctx).
		Where("id > ? AND payment_status = ? AND next_occurrence < ?", afterID, model.PaymentStatusPaid, today).
		Order("id ASC").
		Limit(limit).
		Find(&defs).Error
	return defs, err
}

func (r *RecurringRepository) ListAll(ctx context.Context, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	var defs []*model.RecurringDefinition
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&defs).Error
	return defs, err
}
