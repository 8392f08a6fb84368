package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/model"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound  = errors.New("流水不存在")
	ErrRecurringNotFound    = errors.New("周期账单不存在")
	ErrPaymentStatusInvalid = errors.New("付款状态不合法")
	ErrSavingFundNotFound   = errors.New("储蓄目标不存在")
)

// 所有按 owner 查询的方法都只会看到该 owner 的数据；
// 带 All 前缀的方法跨 owner，只给后台任务使用。

// LedgerFilter 流水查询条件，零值字段不参与过滤
type LedgerFilter struct {
	DateFrom    *time.Time
	DateTo      *time.Time
	CategoryID  *int64
	AccountID   *int64
	RecurringID *int64
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Type        string
	Search      string
	Offset      int
	Limit       int // 0 表示不限制
}

type LedgerStore interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	GetByID(ctx context.Context, ownerID string, id int64) (*model.LedgerEntry, error)
	// Update 覆盖金额、类型、分类、账户、日期、备注，不修改周期账单引用
	Update(ctx context.Context, entry *model.LedgerEntry) error
	// List 按 transaction_date DESC, id DESC 排序
	List(ctx context.Context, ownerID string, f LedgerFilter) ([]*model.LedgerEntry, error)
	Count(ctx context.Context, ownerID string, f LedgerFilter) (int64, error)
	DeleteByIDs(ctx context.Context, ownerID string, ids []int64) (int64, error)
	DeleteByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error)
	CountByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error)
	UpdateCategory(ctx context.Context, ownerID string, ids []int64, categoryID int64) (int64, error)
}

// RecurringFilter 周期账单查询条件
type RecurringFilter struct {
	Search        string
	Active        *bool
	PaymentStatus string
	Type          string
}

// RecurringUpdate 部分更新，nil 字段保持不变；付款状态只能通过 TransitionPayment 修改
type RecurringUpdate struct {
	Name           *string
	Amount         *decimal.Decimal
	Type           *string
	CategoryID     *int64
	AccountID      **int64
	Frequency      *schedule.Frequency
	NextOccurrence *time.Time
	IsActive       *bool
	Note           *string
}

func (u RecurringUpdate) Empty() bool {
	return u.Name == nil && u.Amount == nil && u.Type == nil && u.CategoryID == nil &&
		u.AccountID == nil && u.Frequency == nil && u.NextOccurrence == nil &&
		u.IsActive == nil && u.Note == nil
}

type RecurringStore interface {
	Create(ctx context.Context, def *model.RecurringDefinition) error
	GetByID(ctx context.Context, ownerID string, id int64) (*model.RecurringDefinition, error)
	// List 按 next_occurrence ASC, id ASC 排序
	List(ctx context.Context, ownerID string, f RecurringFilter) ([]*model.RecurringDefinition, error)
	Update(ctx context.Context, ownerID string, id int64, u RecurringUpdate) error
	// TransitionPayment 只有当前状态等于 from 时才更新，否则返回 ErrPaymentStatusInvalid。
	// nextOccurrence 非 nil 时同时写入新的到期日。
	TransitionPayment(ctx context.Context, ownerID string, id int64, from, to string, nextOccurrence *time.Time) error
	Delete(ctx context.Context, ownerID string, id int64) error
	// ListStalePaid 已付且 next_occurrence < today 的账单，id > afterID 游标分页
	ListStalePaid(ctx context.Context, ownerID string, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error)
	// ListAllStalePaid 跨 owner 版本，id > afterID 游标分页
	ListAllStalePaid(ctx context.Context, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error)
	// ListAll 跨 owner 全量遍历，id > afterID 游标分页
	ListAll(ctx context.Context, afterID int64, limit int) ([]*model.RecurringDefinition, error)
}

type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

type CategoryStore interface {
	CreateBatch(ctx context.Context, categories []*model.Category) error
	// List typ 为空时返回全部分类
	List(ctx context.Context, ownerID, typ string) ([]*model.Category, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

type AccountStore interface {
	CreateBatch(ctx context.Context, accounts []*model.Account) error
	List(ctx context.Context, ownerID string) ([]*model.Account, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

// SavingFundUpdate 部分更新，nil 字段保持不变
type SavingFundUpdate struct {
	Name         *string
	TargetAmount *decimal.Decimal
	Deadline     **time.Time
	AccountID    **int64
	Icon         *string
	Color        *string
	Description  *string
}

type SavingStore interface {
	CreateFund(ctx context.Context, fund *model.SavingFund) error
	GetFund(ctx context.Context, ownerID string, id int64) (*model.SavingFund, error)
	// ListFunds 按 created_at DESC, id DESC 排序
	ListFunds(ctx context.Context, ownerID string) ([]*model.SavingFund, error)
	UpdateFund(ctx context.Context, ownerID string, id int64, u SavingFundUpdate) error
	DeleteFund(ctx context.Context, ownerID string, id int64) error
	IncreaseCurrentAmount(ctx context.Context, ownerID string, id int64, amount decimal.Decimal) error
	CreateContribution(ctx context.Context, c *model.SavingContribution) error
	// ListContributions 按 contribution_date DESC, id DESC 排序
	ListContributions(ctx context.Context, ownerID string, fundID int64) ([]*model.SavingContribution, error)
}

// Store 聚合所有仓储并提供事务边界。
// Transaction 内 fn 拿到的 tx 上的所有读写都在同一个事务里，fn 返回错误则整体回滚。
type Store interface {
	Ledger() LedgerStore
	Recurring() RecurringStore
	Outbox() OutboxStore
	Categories() CategoryStore
	Accounts() AccountStore
	Savings() SavingStore
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
