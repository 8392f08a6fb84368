package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

const uncategorized = "Uncategorized"

var hundred = decimal.NewFromInt(100)

// DashboardService 首页汇总，只读
type DashboardService struct {
	store repository.Store
	cfg   *config.Config
	now   func() time.Time
}

func NewDashboardService(store repository.Store, cfg *config.Config) *DashboardService {
	return &DashboardService{store: store, cfg: cfg, now: time.Now}
}

func (s *DashboardService) SetClock(now func() time.Time) {
	s.now = now
}

type DashboardStats struct {
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalSavings   decimal.Decimal `json:"total_savings"`
	MonthIncome    decimal.Decimal `json:"month_income"`
	MonthExpenses  decimal.Decimal `json:"month_expenses"`
	IncomeChange   decimal.Decimal `json:"income_change"`
	ExpensesChange decimal.Decimal `json:"expenses_change"`
}

type MonthlyPoint struct {
	Month    string          `json:"month"`
	Year     int             `json:"year"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

type CategorySlice struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Percentage decimal.Decimal `json:"percentage"`
}

type totals struct {
	income  decimal.Decimal
	expense decimal.Decimal
}

func (t *totals) add(e *model.LedgerEntry) {
	switch e.Type {
	case model.TypeIncome:
		t.income = t.income.Add(e.Amount)
	case model.TypeExpense:
		t.expense = t.expense.Add(e.Amount)
	}
}

func (s *DashboardService) sumRange(ctx context.Context, ownerID string, from, to *time.Time) (totals, error) {
	t := totals{income: decimal.Zero, expense: decimal.Zero}
	entries, err := s.store.Ledger().List(ctx, ownerID, repository.LedgerFilter{DateFrom: from, DateTo: to})
	if err != nil {
		return t, err
	}
	for _, e := range entries {
		t.add(e)
	}
	return t, nil
}

// PercentChange 环比变化百分比，上期为 0 时：本期大于 0 记 100，否则记 0
func PercentChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}

func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	all, err := s.sumRange(ctx, ownerID, nil, nil)
	if err != nil {
		return nil, err
	}

	funds, err := s.store.Savings().ListFunds(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	savings := decimal.Zero
	for _, f := range funds {
		savings = savings.Add(f.CurrentAmount)
	}

	today := schedule.Today(s.now(), s.cfg.Location())
	curFrom, curTo := schedule.MonthBounds(today)
	prevFrom, prevTo := schedule.MonthBounds(curFrom.AddDate(0, 0, -1))

	cur, err := s.sumRange(ctx, ownerID, &curFrom, &curTo)
	if err != nil {
		return nil, err
	}
	prev, err := s.sumRange(ctx, ownerID, &prevFrom, &prevTo)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalBalance:   all.income.Sub(all.expense).Sub(savings),
		TotalSavings:   savings,
		MonthIncome:    cur.income,
		MonthExpenses:  cur.expense,
		IncomeChange:   PercentChange(cur.income, prev.income),
		ExpensesChange: PercentChange(cur.expense, prev.expense),
	}, nil
}

// Monthly 最近 months 个月的收支，按时间正序
func (s *DashboardService) Monthly(ctx context.Context, months int) ([]MonthlyPoint, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 6
	}

	today := schedule.Today(s.now(), s.cfg.Location())
	curFrom, curTo := schedule.MonthBounds(today)
	from := curFrom.AddDate(0, -(months - 1), 0)

	entries, err := s.store.Ledger().List(ctx, ownerID, repository.LedgerFilter{DateFrom: &from, DateTo: &curTo})
	if err != nil {
		return nil, err
	}

	points := make([]MonthlyPoint, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		m := from.AddDate(0, i, 0)
		points[i] = MonthlyPoint{
			Month:    strings.ToUpper(m.Month().String()[:3]),
			Year:     m.Year(),
			Income:   decimal.Zero,
			Expenses: decimal.Zero,
		}
		index[m.Format("2006-01")] = i
	}

	for _, e := range entries {
		i, ok := index[e.TransactionDate.Format("2006-01")]
		if !ok {
			continue
		}
		switch e.Type {
		case model.TypeIncome:
			points[i].Income = points[i].Income.Add(e.Amount)
		case model.TypeExpense:
			points[i].Expenses = points[i].Expenses.Add(e.Amount)
		}
	}
	return points, nil
}

// Categories 本月支出按分类汇总，金额降序
func (s *DashboardService) Categories(ctx context.Context) ([]CategorySlice, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	today := schedule.Today(s.now(), s.cfg.Location())
	from, to := schedule.MonthBounds(today)
	entries, err := s.store.Ledger().List(ctx, ownerID, repository.LedgerFilter{
		DateFrom: &from,
		DateTo:   &to,
		Type:     model.TypeExpense,
	})
	if err != nil {
		return nil, err
	}

	categories, err := s.store.Categories().List(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	sums := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, e := range entries {
		name := uncategorized
		if e.CategoryID != nil {
			if n, ok := names[*e.CategoryID]; ok {
				name = n
			}
		}
		sums[name] = sums[name].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	slices := make([]CategorySlice, 0, len(sums))
	for name, v := range sums {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = v.Div(total).Mul(hundred).Round(2)
		}
		slices = append(slices, CategorySlice{Name: name, Value: v, Percentage: pct})
	}
	sort.Slice(slices, func(i, j int) bool {
		if !slices[i].Value.Equal(slices[j].Value) {
			return slices[i].Value.GreaterThan(slices[j].Value)
		}
		return slices[i].Name < slices[j].Name
	})
	return slices, nil
}

// Recent 最近的流水，默认 5 条
func (s *DashboardService) Recent(ctx context.Context, limit int) ([]*model.LedgerEntry, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	entries, err := s.store.Ledger().List(ctx, ownerID, repository.LedgerFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.LedgerEntry{}
	}
	return entries, nil
}
