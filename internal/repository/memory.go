package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/model"

	"github.com/shopspring/decimal"
)

// MemoryStore 内存版 Store，用于单元测试和本地演示。
//
// Transaction 之间互斥执行：进入事务时对全部数据做快照，fn 返回错误时整体恢复。
// 事务执行期间的非事务写入会被回滚一起覆盖，调用方不应混用。
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	ledger        map[int64]model.LedgerEntry
	recurring     map[int64]model.RecurringDefinition
	outbox        map[int64]model.OutboxMessage
	outboxSeq     int64
	categories    map[int64]model.Category
	accounts      map[int64]model.Account
	funds         map[int64]model.SavingFund
	contributions map[int64]model.SavingContribution
}

func newMemoryData() *memoryData {
	return &memoryData{
		ledger:        make(map[int64]model.LedgerEntry),
		recurring:     make(map[int64]model.RecurringDefinition),
		outbox:        make(map[int64]model.OutboxMessage),
		categories:    make(map[int64]model.Category),
		accounts:      make(map[int64]model.Account),
		funds:         make(map[int64]model.SavingFund),
		contributions: make(map[int64]model.SavingContribution),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.ledger {
		c.ledger[k] = v
	}
	for k, v := range d.recurring {
		c.recurring[k] = v
	}
	for k, v := range d.outbox {
		c.outbox[k] = v
	}
	c.outboxSeq = d.outboxSeq
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.funds {
		c.funds[k] = v
	}
	for k, v := range d.contributions {
		c.contributions[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func (s *MemoryStore) Ledger() LedgerStore { return memoryLedger{s} }
func (s *MemoryStore) Recurring() RecurringStore { return memoryRecurring{s} }
func (s *MemoryStore) Outbox() OutboxStore { return memoryOutbox{s} }
func (s *MemoryStore) Categories() CategoryStore { return memoryCategories{s} }
func (s *MemoryStore) Accounts() AccountStore { return memoryAccounts{s} }
func (s *MemoryStore) Savings() SavingStore { return memorySavings{s} }

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) locked(fn func(d *memoryData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func int64In(id int64, ids []int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ---- ledger ----

type memoryLedger struct{ s *MemoryStore }

func (m memoryLedger) Create(ctx context.Context, entry *model.LedgerEntry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	m.s.locked(func(d *memoryData) { d.ledger[entry.ID] = *entry })
	return nil
}

func (m memoryLedger) GetByID(ctx context.Context, ownerID string, id int64) (*model.LedgerEntry, error) {
	var (
		entry model.LedgerEntry
		ok    bool
	)
	m.s.locked(func(d *memoryData) { entry, ok = d.ledger[id] })
	if !ok || entry.OwnerID != ownerID {
		return nil, ErrTransactionNotFound
	}
	return &entry, nil
}

func (m memoryLedger) Update(ctx context.Context, entry *model.LedgerEntry) error {
	var err error
	m.s.locked(func(d *memoryData) {
		cur, ok := d.ledger[entry.ID]
		if !ok || cur.OwnerID != entry.OwnerID {
			err = ErrTransactionNotFound
			return
		}
		cur.Amount = entry.Amount
		cur.Type = entry.Type
		cur.CategoryID = entry.CategoryID
		cur.AccountID = entry.AccountID
		cur.TransactionDate = entry.TransactionDate
		cur.Note = entry.Note
		cur.UpdatedAt = time.Now()
		d.ledger[entry.ID] = cur
	})
	return err
}

func matchLedger(e model.LedgerEntry, ownerID string, f LedgerFilter) bool {
	if e.OwnerID != ownerID {
		return false
	}
	if f.DateFrom != nil && e.TransactionDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && e.TransactionDate.After(*f.DateTo) {
		return false
	}
	if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
		return false
	}
	if f.AccountID != nil && (e.AccountID == nil || *e.AccountID != *f.AccountID) {
		return false
	}
	if f.RecurringID != nil && (e.RecurringDefinitionID == nil || *e.RecurringDefinitionID != *f.RecurringID) {
		return false
	}
	if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Search != "" && !containsFold(e.Note, f.Search) {
		return false
	}
	return true
}

func (m memoryLedger) filter(ownerID string, f LedgerFilter) []*model.LedgerEntry {
	var out []*model.LedgerEntry
	m.s.locked(func(d *memoryData) {
		for _, e := range d.ledger {
			if matchLedger(e, ownerID, f) {
				e := e
				out = append(out, &e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m memoryLedger) List(ctx context.Context, ownerID string, f LedgerFilter) ([]*model.LedgerEntry, error) {
	out := m.filter(ownerID, f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m memoryLedger) Count(ctx context.Context, ownerID string, f LedgerFilter) (int64, error) {
	return int64(len(m.filter(ownerID, f))), nil
}

func (m memoryLedger) DeleteByIDs(ctx context.Context, ownerID string, ids []int64) (int64, error) {
	var n int64
	m.s.locked(func(d *memoryData) {
		for id, e := range d.ledger {
			if e.OwnerID == ownerID && int64In(id, ids) {
				delete(d.ledger, id)
				n++
			}
		}
	})
	return n, nil
}

func (m memoryLedger) DeleteByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error) {
	var n int64
	m.s.locked(func(d *memoryData) {
		for id, e := range d.ledger {
			if e.OwnerID == ownerID && e.RecurringDefinitionID != nil && *e.RecurringDefinitionID == recurringID {
				delete(d.ledger, id)
				n++
			}
		}
	})
	return n, nil
}

func (m memoryLedger) CountByRecurringID(ctx context.Context, ownerID string, recurringID int64) (int64, error) {
	var n int64
	m.s.locked(func(d *memoryData) {
		for _, e := range d.ledger {
			if e.OwnerID == ownerID && e.RecurringDefinitionID != nil && *e.RecurringDefinitionID == recurringID {
				n++
			}
		}
	})
	return n, nil
}

func (m memoryLedger) UpdateCategory(ctx context.Context, ownerID string, ids []int64, categoryID int64) (int64, error) {
	var n int64
	m.s.locked(func(d *memoryData) {
		for id, e := range d.ledger {
			if e.OwnerID == ownerID && int64In(id, ids) {
				cid := categoryID
				e.CategoryID = &cid
				e.UpdatedAt = time.Now()
				d.ledger[id] = e
				n++
			}
		}
	})
	return n, nil
}

// ---- recurring ----

type memoryRecurring struct{ s *MemoryStore }

func (m memoryRecurring) Create(ctx context.Context, def *model.RecurringDefinition) error {
	now := time.Now()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	m.s.locked(func(d *memoryData) { d.recurring[def.ID] = *def })
	return nil
}

func (m memoryRecurring) GetByID(ctx context.Context, ownerID string, id int64) (*model.RecurringDefinition, error) {
	var (
		def model.RecurringDefinition
		ok  bool
	)
	m.s.locked(func(d *memoryData) { def, ok = d.recurring[id] })
	if !ok || def.OwnerID != ownerID {
		return nil, ErrRecurringNotFound
	}
	return &def, nil
}

func sortByNextOccurrence(defs []*model.RecurringDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if !defs[i].NextOccurrence.Equal(defs[j].NextOccurrence) {
			return defs[i].NextOccurrence.Before(defs[j].NextOccurrence)
		}
		return defs[i].ID < defs[j].ID
	})
}

func sortByID(defs []*model.RecurringDefinition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}

func (m memoryRecurring) List(ctx context.Context, ownerID string, f RecurringFilter) ([]*model.RecurringDefinition, error) {
	var out []*model.RecurringDefinition
	m.s.locked(func(d *memoryData) {
		for _, def := range d.recurring {
			if def.OwnerID != ownerID {
				continue
			}
			if f.Search != "" && !containsFold(def.Name, f.Search) {
				continue
			}
			if f.Active != nil && def.IsActive != *f.Active {
				continue
			}
			if f.PaymentStatus != "" && def.PaymentStatus != f.PaymentStatus {
				continue
			}
			if f.Type != "" && def.Type != f.Type {
				continue
			}
			def := def
			out = append(out, &def)
		}
	})
	sortByNextOccurrence(out)
	return out, nil
}

func (m memoryRecurring) Update(ctx context.Context, ownerID string, id int64, u RecurringUpdate) error {
	var err error
	m.s.locked(func(d *memoryData) {
		def, ok := d.recurring[id]
		if !ok || def.OwnerID != ownerID {
			err = ErrRecurringNotFound
			return
		}
		if u.Name != nil {
			def.Name = *u.Name
		}
		if u.Amount != nil {
			def.Amount = *u.Amount
		}
		if u.Type != nil {
			def.Type = *u.Type
		}
		if u.CategoryID != nil {
			def.CategoryID = *u.CategoryID
		}
		if u.AccountID != nil {
			def.AccountID = *u.AccountID
		}
		if u.Frequency != nil {
			def.Frequency = *u.Frequency
		}
		if u.NextOccurrence != nil {
			def.NextOccurrence = *u.NextOccurrence
		}
		if u.IsActive != nil {
			def.IsActive = *u.IsActive
		}
		if u.Note != nil {
			def.Note = *u.Note
		}
		def.UpdatedAt = time.Now()
		d.recurring[id] = def
	})
	return err
}

func (m memoryRecurring) TransitionPayment(ctx context.Context, ownerID string, id int64, from, to string, nextOccurrence *time.Time) error {
	if !model.CanTransitionPayment(from, to) {
		return ErrPaymentStatusInvalid
	}
	var err error
	m.s.locked(func(d *memoryData) {
		def, ok := d.recurring[id]
		if !ok || def.OwnerID != ownerID || def.PaymentStatus != from {
			err = ErrPaymentStatusInvalid
			return
		}
		def.PaymentStatus = to
		if nextOccurrence != nil {
			def.NextOccurrence = *nextOccurrence
		}
		def.UpdatedAt = time.Now()
		d.recurring[id] = def
	})
	return err
}

func (m memoryRecurring) Delete(ctx context.Context, ownerID string, id int64) error {
	var err error
	m.s.locked(func(d *memoryData) {
		def, ok := d.recurring[id]
		if !ok || def.OwnerID != ownerID {
			err = ErrRecurringNotFound
			return
		}
		delete(d.recurring, id)
	})
	return err
}

func (m memoryRecurring) collect(limit int, match func(def model.RecurringDefinition) bool) []*model.RecurringDefinition {
	var out []*model.RecurringDefinition
	m.s.locked(func(d *memoryData) {
		for _, def := range d.recurring {
			if match(def) {
				def := def
				out = append(out, &def)
			}
		}
	})
	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m memoryRecurring) ListStalePaid(ctx context.Context, ownerID string, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	return m.collect(limit, func(def model.RecurringDefinition) bool {
		return def.ID > afterID && def.OwnerID == ownerID && def.IsPaid() && def.NextOccurrence.Before(today)
	}), nil
}

func (m memoryRecurring) ListAllStalePaid(ctx context.Context, today time.Time, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	return m.collect(limit, func(def model.RecurringDefinition) bool {
		return def.ID > afterID && def.IsPaid() && def.NextOccurrence.Before(today)
	}), nil
}

func (m memoryRecurring) ListAll(ctx context.Context, afterID int64, limit int) ([]*model.RecurringDefinition, error) {
	return m.collect(limit, func(def model.RecurringDefinition) bool {
		return def.ID > afterID
	}), nil
}

// ---- outbox ----

type memoryOutbox struct{ s *MemoryStore }

func (m memoryOutbox) Create(ctx context.Context, msg *model.OutboxMessage) error {
	m.s.locked(func(d *memoryData) {
		d.outboxSeq++
		msg.ID = d.outboxSeq
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		now := time.Now()
		msg.CreatedAt = now
		msg.UpdatedAt = now
		d.outbox[msg.ID] = *msg
	})
	return nil
}

func (m memoryOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	m.s.locked(func(d *memoryData) {
		for _, msg := range d.outbox {
			if msg.Status == model.OutboxStatusPending {
				msg := msg
				out = append(out, &msg)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memoryOutbox) modify(id int64, fn func(msg *model.OutboxMessage)) {
	m.s.locked(func(d *memoryData) {
		msg, ok := d.outbox[id]
		if !ok {
			return
		}
		fn(&msg)
		msg.UpdatedAt = time.Now()
		d.outbox[id] = msg
	})
}

func (m memoryOutbox) UpdateStatus(ctx context.Context, id int64, status string) error {
	m.modify(id, func(msg *model.OutboxMessage) { msg.Status = status })
	return nil
}

func (m memoryOutbox) IncrementRetryCount(ctx context.Context, id int64) error {
	m.modify(id, func(msg *model.OutboxMessage) { msg.RetryCount++ })
	return nil
}

func (m memoryOutbox) MarkAsFailed(ctx context.Context, id int64) error {
	m.modify(id, func(msg *model.OutboxMessage) { msg.Status = model.OutboxStatusFailed })
	return nil
}

// ---- categories / accounts ----

type memoryCategories struct{ s *MemoryStore }

func (m memoryCategories) CreateBatch(ctx context.Context, categories []*model.Category) error {
	m.s.locked(func(d *memoryData) {
		for _, c := range categories {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = time.Now()
			}
			d.categories[c.ID] = *c
		}
	})
	return nil
}

func (m memoryCategories) List(ctx context.Context, ownerID, typ string) ([]*model.Category, error) {
	var out []*model.Category
	m.s.locked(func(d *memoryData) {
		for _, c := range d.categories {
			if c.OwnerID == ownerID && (typ == "" || c.Type == typ) {
				c := c
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memoryCategories) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	list, _ := m.List(ctx, ownerID, "")
	return int64(len(list)), nil
}

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) CreateBatch(ctx context.Context, accounts []*model.Account) error {
	m.s.locked(func(d *memoryData) {
		for _, a := range accounts {
			now := time.Now()
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}
			a.UpdatedAt = now
			d.accounts[a.ID] = *a
		}
	})
	return nil
}

func (m memoryAccounts) List(ctx context.Context, ownerID string) ([]*model.Account, error) {
	var out []*model.Account
	m.s.locked(func(d *memoryData) {
		for _, a := range d.accounts {
			if a.OwnerID == ownerID {
				a := a
				out = append(out, &a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memoryAccounts) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	list, _ := m.List(ctx, ownerID)
	return int64(len(list)), nil
}

// ---- savings ----

type memorySavings struct{ s *MemoryStore }

func (m memorySavings) CreateFund(ctx context.Context, fund *model.SavingFund) error {
	now := time.Now()
	if fund.CreatedAt.IsZero() {
		fund.CreatedAt = now
	}
	fund.UpdatedAt = now
	m.s.locked(func(d *memoryData) { d.funds[fund.ID] = *fund })
	return nil
}

func (m memorySavings) GetFund(ctx context.Context, ownerID string, id int64) (*model.SavingFund, error) {
	var (
		fund model.SavingFund
		ok   bool
	)
	m.s.locked(func(d *memoryData) { fund, ok = d.funds[id] })
	if !ok || fund.OwnerID != ownerID {
		return nil, ErrSavingFundNotFound
	}
	return &fund, nil
}

func (m memorySavings) ListFunds(ctx context.Context, ownerID string) ([]*model.SavingFund, error) {
	var out []*model.SavingFund
	m.s.locked(func(d *memoryData) {
		for _, f := range d.funds {
			if f.OwnerID == ownerID {
				f := f
				out = append(out, &f)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m memorySavings) modifyFund(ownerID string, id int64, fn func(f *model.SavingFund)) error {
	var err error
	m.s.locked(func(d *memoryData) {
		f, ok := d.funds[id]
		if !ok || f.OwnerID != ownerID {
			err = ErrSavingFundNotFound
			return
		}
		fn(&f)
		f.UpdatedAt = time.Now()
		d.funds[id] = f
	})
	return err
}

func (m memorySavings) UpdateFund(ctx context.Context, ownerID string, id int64, u SavingFundUpdate) error {
	return m.modifyFund(ownerID, id, func(f *model.SavingFund) {
		if u.Name != nil {
			f.Name = *u.Name
		}
		if u.TargetAmount != nil {
			f.TargetAmount = *u.TargetAmount
		}
		if u.Deadline != nil {
			f.Deadline = *u.Deadline
		}
		if u.AccountID != nil {
			f.AccountID = *u.AccountID
		}
		if u.Icon != nil {
			f.Icon = *u.Icon
		}
		if u.Color != nil {
			f.Color = *u.Color
		}
		if u.Description != nil {
			f.Description = *u.Description
		}
	})
}

func (m memorySavings) DeleteFund(ctx context.Context, ownerID string, id int64) error {
	var err error
	m.s.locked(func(d *memoryData) {
		f, ok := d.funds[id]
		if !ok || f.OwnerID != ownerID {
			err = ErrSavingFundNotFound
			return
		}
		delete(d.funds, id)
	})
	return err
}

func (m memorySavings) IncreaseCurrentAmount(ctx context.Context, ownerID string, id int64, amount decimal.Decimal) error {
	return m.modifyFund(ownerID, id, func(f *model.SavingFund) {
		f.CurrentAmount = f.CurrentAmount.Add(amount)
	})
}

func (m memorySavings) CreateContribution(ctx context.Context, c *model.SavingContribution) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.s.locked(func(d *memoryData) { d.contributions[c.ID] = *c })
	return nil
}

func (m memorySavings) ListContributions(ctx context.Context, ownerID string, fundID int64) ([]*model.SavingContribution, error) {
	var out []*model.SavingContribution
	m.s.locked(func(d *memoryData) {
		for _, c := range d.contributions {
			if c.OwnerID == ownerID && c.SavingFundID == fundID {
				c := c
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ContributionDate.Equal(out[j].ContributionDate) {
			return out[i].ContributionDate.After(out[j].ContributionDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
