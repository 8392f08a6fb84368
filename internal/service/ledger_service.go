package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"fintrack/internal/config"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// LedgerService 用户直接记账。这里创建的流水不会带周期账单引用。
type LedgerService struct {
	store repository.Store
	cfg   *config.Config
}

func NewLedgerService(store repository.Store, cfg *config.Config) *LedgerService {
	return &LedgerService{store: store, cfg: cfg}
}

type CreateTransactionRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"type" binding:"required"`
	CategoryID      *int64          `json:"category_id"`
	AccountID       *int64          `json:"account_id"`
	TransactionDate string          `json:"transaction_date" binding:"required"`
	Note            string          `json:"note"`
}

type UpdateTransactionRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	Type            *string          `json:"type"`
	CategoryID      *int64           `json:"category_id"`
	AccountID       *int64           `json:"account_id"`
	TransactionDate *string          `json:"transaction_date"`
	Note            *string          `json:"note"`
}

type TransactionListQuery struct {
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	CategoryID int64  `form:"category_id"`
	AccountID  int64  `form:"account_id"`
	MinAmount  string `form:"min_amount"`
	MaxAmount  string `form:"max_amount"`
	Type       string `form:"type"`
	Search     string `form:"search"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

type TransactionPage struct {
	Items    []*model.LedgerEntry `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

func (s *LedgerService) Create(ctx context.Context, req *CreateTransactionRequest) (*model.LedgerEntry, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !model.ValidType(req.Type) {
		return nil, ErrInvalidType
	}
	date, err := schedule.ParseDate(req.TransactionDate)
	if err != nil {
		return nil, ErrInvalidDate
	}

	entry := &model.LedgerEntry{
		ID:              idgen.NextID(),
		OwnerID:         ownerID,
		Amount:          req.Amount,
		Type:            req.Type,
		CategoryID:      req.CategoryID,
		AccountID:       req.AccountID,
		TransactionDate: date,
		Note:            strings.TrimSpace(req.Note),
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Ledger().Create(ctx, entry); err != nil {
			return fmt.Errorf("创建流水失败: %w", err)
		}
		return writeEvent(ctx, tx, s.cfg.Kafka.Topic.LedgerEvents, model.EventLedgerCreated, entry.ID, ownerID, map[string]interface{}{
			"amount":           entry.Amount.String(),
			"type":             entry.Type,
			"transaction_date": schedule.FormatDate(entry.TransactionDate),
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) Get(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Ledger().GetByID(ctx, ownerID, id)
}

// Update 修改流水字段，周期账单引用保持不变
func (s *LedgerService) Update(ctx context.Context, id int64, req *UpdateTransactionRequest) (*model.LedgerEntry, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount == nil && req.Type == nil && req.CategoryID == nil && req.AccountID == nil &&
		req.TransactionDate == nil && req.Note == nil {
		return nil, ErrNothingToUpdate
	}

	var entry *model.LedgerEntry
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		entry, err = tx.Ledger().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if req.Amount != nil {
			if !req.Amount.IsPositive() {
				return ErrInvalidAmount
			}
			entry.Amount = *req.Amount
		}
		if req.Type != nil {
			if !model.ValidType(*req.Type) {
				return ErrInvalidType
			}
			entry.Type = *req.Type
		}
		if req.CategoryID != nil {
			entry.CategoryID = req.CategoryID
		}
		if req.AccountID != nil {
			entry.AccountID = req.AccountID
		}
		if req.TransactionDate != nil {
			date, err := schedule.ParseDate(*req.TransactionDate)
			if err != nil {
				return ErrInvalidDate
			}
			entry.TransactionDate = date
		}
		if req.Note != nil {
			entry.Note = strings.TrimSpace(*req.Note)
		}

		if err := tx.Ledger().Update(ctx, entry); err != nil {
			return err
		}
		return writeEvent(ctx, tx, s.cfg.Kafka.Topic.LedgerEvents, model.EventLedgerUpdated, entry.ID, ownerID, map[string]interface{}{
			"amount":           entry.Amount.String(),
			"type":             entry.Type,
			"transaction_date": schedule.FormatDate(entry.TransactionDate),
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) buildFilter(q *TransactionListQuery) (repository.LedgerFilter, error) {
	f := repository.LedgerFilter{
		Type:   q.Type,
		Search: strings.TrimSpace(q.Search),
	}
	if f.Type != "" && !model.ValidType(f.Type) {
		return f, ErrInvalidType
	}
	if q.DateFrom != "" {
		d, err := schedule.ParseDate(q.DateFrom)
		if err != nil {
			return f, ErrInvalidDate
		}
		f.DateFrom = &d
	}
	if q.DateTo != "" {
		d, err := schedule.ParseDate(q.DateTo)
		if err != nil {
			return f, ErrInvalidDate
		}
		f.DateTo = &d
	}
	if q.CategoryID > 0 {
		id := q.CategoryID
		f.CategoryID = &id
	}
	if q.AccountID > 0 {
		id := q.AccountID
		f.AccountID = &id
	}
	if q.MinAmount != "" {
		v, err := decimal.NewFromString(q.MinAmount)
		if err != nil {
			return f, fmt.Errorf("%w: min_amount", ErrInvalidFilter)
		}
		f.MinAmount = &v
	}
	if q.MaxAmount != "" {
		v, err := decimal.NewFromString(q.MaxAmount)
		if err != nil {
			return f, fmt.Errorf("%w: max_amount", ErrInvalidFilter)
		}
		f.MaxAmount = &v
	}
	return f, nil
}

func (s *LedgerService) List(ctx context.Context, q *TransactionListQuery) (*TransactionPage, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.buildFilter(q)
	if err != nil {
		return nil, err
	}

	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	f.Offset = (page - 1) * size
	f.Limit = size

	items, err := s.store.Ledger().List(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Ledger().Count(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.LedgerEntry{}
	}
	return &TransactionPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (s *LedgerService) Count(ctx context.Context, q *TransactionListQuery) (int64, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return 0, err
	}
	f, err := s.buildFilter(q)
	if err != nil {
		return 0, err
	}
	return s.store.Ledger().Count(ctx, ownerID, f)
}

// DeleteMany 批量删除，不存在的 id 忽略
func (s *LedgerService) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrEmptyIDs
	}

	var deleted int64
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		deleted, err = tx.Ledger().DeleteByIDs(ctx, ownerID, ids)
		if err != nil {
			return fmt.Errorf("删除流水失败: %w", err)
		}
		if deleted == 0 {
			return nil
		}
		return writeEvent(ctx, tx, s.cfg.Kafka.Topic.LedgerEvents, model.EventLedgerDeleted, ids[0], ownerID, map[string]interface{}{
			"ids":     ids,
			"deleted": deleted,
		})
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[LedgerService] 批量删除流水: owner=%s, requested=%d, deleted=%d", ownerID, len(ids), deleted)
	return deleted, nil
}

// UpdateCategory 批量修改分类
func (s *LedgerService) UpdateCategory(ctx context.Context, ids []int64, categoryID int64) (int64, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrEmptyIDs
	}
	if categoryID <= 0 {
		return 0, ErrInvalidCategory
	}
	return s.store.Ledger().UpdateCategory(ctx, ownerID, ids, categoryID)
}
