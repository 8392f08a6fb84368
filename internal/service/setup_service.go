package service

import (
	"context"
	"fmt"
	"log"

	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"

	"github.com/shopspring/decimal"
)

const defaultCurrency = "VND"

type seedCategory struct {
	name, icon, color string
}

var defaultIncomeCategories = []seedCategory{
	{"Salary", "💼", "#10b981"},
	{"Freelance", "💻", "#3b82f6"},
	{"Investment", "📈", "#8b5cf6"},
	{"Gift", "🎁", "#ec4899"},
	{"Other Income", "💰", "#06b6d4"},
}

var defaultExpenseCategories = []seedCategory{
	{"Food & Dining", "🍔", "#f59e0b"},
	{"Transportation", "🚗", "#ef4444"},
	{"Shopping", "🛍️", "#ec4899"},
	{"Entertainment", "🎬", "#8b5cf6"},
	{"Bills & Utilities", "📄", "#06b6d4"},
	{"Healthcare", "🏥", "#10b981"},
	{"Education", "📚", "#3b82f6"},
	{"Housing", "🏠", "#6366f1"},
	{"Other Expense", "💸", "#64748b"},
}

var defaultAccounts = []struct{ name, typ string }{
	{"Cash", "cash"},
	{"Bank Account", "bank"},
	{"Credit Card", "credit_card"},
}

// SetupService 新用户初始化默认分类和账户
type SetupService struct {
	store repository.Store
}

func NewSetupService(store repository.Store) *SetupService {
	return &SetupService{store: store}
}

type SetupStatus struct {
	Initialized bool `json:"initialized"`
}

// Status 有任何分类即视为已初始化
func (s *SetupService) Status(ctx context.Context) (*SetupStatus, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Categories().CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &SetupStatus{Initialized: n > 0}, nil
}

// Init 幂等，已有分类或账户的部分跳过
func (s *SetupService) Init(ctx context.Context) (*SetupStatus, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		categoryCount, err := tx.Categories().CountByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if categoryCount == 0 {
			categories := make([]*model.Category, 0, len(defaultIncomeCategories)+len(defaultExpenseCategories))
			for _, c := range defaultIncomeCategories {
				categories = append(categories, newCategory(ownerID, model.TypeIncome, c))
			}
			for _, c := range defaultExpenseCategories {
				categories = append(categories, newCategory(ownerID, model.TypeExpense, c))
			}
			if err := tx.Categories().CreateBatch(ctx, categories); err != nil {
				return fmt.Errorf("创建默认分类失败: %w", err)
			}
		}

		accountCount, err := tx.Accounts().CountByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if accountCount == 0 {
			accounts := make([]*model.Account, 0, len(defaultAccounts))
			for _, a := range defaultAccounts {
				accounts = append(accounts, &model.Account{
					ID:       idgen.NextID(),
					OwnerID:  ownerID,
					Name:     a.name,
					Type:     a.typ,
					Balance:  decimal.Zero,
					Currency: defaultCurrency,
				})
			}
			if err := tx.Accounts().CreateBatch(ctx, accounts); err != nil {
				return fmt.Errorf("创建默认账户失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SetupService] 用户初始化完成: owner=%s", ownerID)
	return &SetupStatus{Initialized: true}, nil
}

func newCategory(ownerID, typ string, c seedCategory) *model.Category {
	return &model.Category{
		ID:      idgen.NextID(),
		OwnerID: ownerID,
		Name:    c.name,
		Type:    typ,
		Icon:    c.icon,
		Color:   c.color,
	}
}

func (s *SetupService) Categories(ctx context.Context, typ string) ([]*model.Category, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if typ != "" && !model.ValidType(typ) {
		return nil, ErrInvalidType
	}
	list, err := s.store.Categories().List(ctx, ownerID, typ)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Category{}
	}
	return list, nil
}

func (s *SetupService) Accounts(ctx context.Context) ([]*model.Account, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Accounts().List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Account{}
	}
	return list, nil
}
