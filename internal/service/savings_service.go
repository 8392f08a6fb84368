package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

var ErrInvalidTarget = errors.New("目标金额必须大于0")

// SavingsService 储蓄目标
type SavingsService struct {
	store repository.Store
	cfg   *config.Config
	now   func() time.Time
}

func NewSavingsService(store repository.Store, cfg *config.Config) *SavingsService {
	return &SavingsService{store: store, cfg: cfg, now: time.Now}
}

type CreateFundRequest struct {
	Name          string          `json:"name" binding:"required"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      string          `json:"deadline"`
	AccountID     *int64          `json:"account_id"`
	Icon          string          `json:"icon"`
	Color         string          `json:"color"`
	Description   string          `json:"description"`
}

type UpdateFundRequest struct {
	Name          *string          `json:"name"`
	TargetAmount  *decimal.Decimal `json:"target_amount"`
	Deadline      *string          `json:"deadline"`
	ClearDeadline bool             `json:"clear_deadline"`
	AccountID     *int64           `json:"account_id"`
	Icon          *string          `json:"icon"`
	Color         *string          `json:"color"`
	Description   *string          `json:"description"`
}

type ContributionRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	ContributionDate string          `json:"contribution_date"`
	TransactionID    *int64          `json:"transaction_id"`
	Note             string          `json:"note"`
}

type SavingsStats struct {
	TotalSaved     decimal.Decimal `json:"total_saved"`
	TotalTarget    decimal.Decimal `json:"total_target"`
	CompletedGoals int             `json:"completed_goals"`
	ActiveGoals    int             `json:"active_goals"`
	TotalGoals     int             `json:"total_goals"`
}

func (s *SavingsService) CreateFund(ctx context.Context, req *CreateFundRequest) (*model.SavingFund, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !req.TargetAmount.IsPositive() {
		return nil, ErrInvalidTarget
	}
	if req.CurrentAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	fund := &model.SavingFund{
		ID:            idgen.NextID(),
		OwnerID:       ownerID,
		Name:          name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		AccountID:     req.AccountID,
		Icon:          req.Icon,
		Color:         req.Color,
		Description:   strings.TrimSpace(req.Description),
	}
	if req.Deadline != "" {
		d, err := schedule.ParseDate(req.Deadline)
		if err != nil {
			return nil, ErrInvalidDate
		}
		fund.Deadline = &d
	}

	if err := s.store.Savings().CreateFund(ctx, fund); err != nil {
		return nil, fmt.Errorf("创建储蓄目标失败: %w", err)
	}
	return fund, nil
}

func (s *SavingsService) GetFund(ctx context.Context, id int64) (*model.SavingFund, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Savings().GetFund(ctx, ownerID, id)
}

func (s *SavingsService) ListFunds(ctx context.Context) ([]*model.SavingFund, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	funds, err := s.store.Savings().ListFunds(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if funds == nil {
		funds = []*model.SavingFund{}
	}
	return funds, nil
}

func (s *SavingsService) UpdateFund(ctx context.Context, id int64, req *UpdateFundRequest) (*model.SavingFund, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	var u repository.SavingFundUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		u.Name = &name
	}
	if req.TargetAmount != nil {
		if !req.TargetAmount.IsPositive() {
			return nil, ErrInvalidTarget
		}
		u.TargetAmount = req.TargetAmount
	}
	if req.ClearDeadline {
		var none *time.Time
		u.Deadline = &none
	} else if req.Deadline != nil {
		d, err := schedule.ParseDate(*req.Deadline)
		if err != nil {
			return nil, ErrInvalidDate
		}
		deadline := &d
		u.Deadline = &deadline
	}
	if req.AccountID != nil {
		account := req.AccountID
		u.AccountID = &account
	}
	u.Icon = req.Icon
	u.Color = req.Color
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		u.Description = &desc
	}

	if err := s.store.Savings().UpdateFund(ctx, ownerID, id, u); err != nil {
		return nil, err
	}
	return s.store.Savings().GetFund(ctx, ownerID, id)
}

func (s *SavingsService) DeleteFund(ctx context.Context, id int64) error {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	return s.store.Savings().DeleteFund(ctx, ownerID, id)
}

// AddContribution 写入存入记录并累加目标当前金额，同一事务
func (s *SavingsService) AddContribution(ctx context.Context, fundID int64, req *ContributionRequest) (*model.SavingFund, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	date := schedule.Today(s.now(), s.cfg.Location())
	if req.ContributionDate != "" {
		if date, err = schedule.ParseDate(req.ContributionDate); err != nil {
			return nil, ErrInvalidDate
		}
	}

	var fund *model.SavingFund
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Savings().GetFund(ctx, ownerID, fundID); err != nil {
			return err
		}
		c := &model.SavingContribution{
			ID:               idgen.NextID(),
			OwnerID:          ownerID,
			SavingFundID:     fundID,
			TransactionID:    req.TransactionID,
			Amount:           req.Amount,
			ContributionDate: date,
			Note:             strings.TrimSpace(req.Note),
		}
		if err := tx.Savings().CreateContribution(ctx, c); err != nil {
			return fmt.Errorf("写入存入记录失败: %w", err)
		}
		if err := tx.Savings().IncreaseCurrentAmount(ctx, ownerID, fundID, req.Amount); err != nil {
			return fmt.Errorf("更新储蓄金额失败: %w", err)
		}
		fund, err = tx.Savings().GetFund(ctx, ownerID, fundID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SavingsService] 存入: fund=%d, owner=%s, amount=%s, current=%s",
		fundID, ownerID, req.Amount, fund.CurrentAmount)
	return fund, nil
}

func (s *SavingsService) ListContributions(ctx context.Context, fundID int64) ([]*model.SavingContribution, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Savings().GetFund(ctx, ownerID, fundID); err != nil {
		return nil, err
	}
	list, err := s.store.Savings().ListContributions(ctx, ownerID, fundID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.SavingContribution{}
	}
	return list, nil
}

func (s *SavingsService) Stats(ctx context.Context) (*SavingsStats, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	funds, err := s.store.Savings().ListFunds(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &SavingsStats{TotalSaved: decimal.Zero, TotalTarget: decimal.Zero, TotalGoals: len(funds)}
	for _, f := range funds {
		stats.TotalSaved = stats.TotalSaved.Add(f.CurrentAmount)
		stats.TotalTarget = stats.TotalTarget.Add(f.TargetAmount)
		if f.Completed() {
			stats.CompletedGoals++
		} else {
			stats.ActiveGoals++
		}
	}
	return stats, nil
}
