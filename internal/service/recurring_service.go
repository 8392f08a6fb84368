package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/infrastructure/metrics"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

const recurringNoteFormat = "%s — recurring payment"

// RecurringService 周期账单生命周期
//
// 状态机：
//
//	UNPAID --MarkPaid--> PAID     生成一条流水（日期 = 当前 next_occurrence），next_occurrence 前进一个周期
//	PAID --MarkUnpaid--> UNPAID   删除所有关联流水，next_occurrence 不回退
//	PAID --Sweep-------> UNPAID   next_occurrence 已过期时重置，再前进一个周期，不动流水
//
// 每次迁移都在一个数据库事务里完成，并按账单 id 加锁串行化。
type RecurringService struct {
	store  repository.Store
	locker lock.Locker
	cfg    *config.Config
	now    func() time.Time
}

func NewRecurringService(store repository.Store, locker lock.Locker, cfg *config.Config) *RecurringService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &RecurringService{
		store:  store,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock 替换时钟，测试使用
func (s *RecurringService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *RecurringService) today() time.Time {
	return schedule.Today(s.now(), s.cfg.Location())
}

type CreateRecurringRequest struct {
	Name       string          `json:"name" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	CategoryID int64           `json:"category_id" binding:"required"`
	AccountID  *int64          `json:"account_id"`
	Frequency  string          `json:"frequency"`
	StartDate  string          `json:"start_date" binding:"required"`
	IsActive   *bool           `json:"is_active"`
	Note       string          `json:"note"`
}

// UpdateRecurringRequest 部分更新，不包含付款状态
type UpdateRecurringRequest struct {
	Name           *string          `json:"name"`
	Amount         *decimal.Decimal `json:"amount"`
	Type           *string          `json:"type"`
	CategoryID     *int64           `json:"category_id"`
	AccountID      *int64           `json:"account_id"`
	ClearAccount   bool             `json:"clear_account"`
	Frequency      *string          `json:"frequency"`
	NextOccurrence *string          `json:"next_occurrence"`
	IsActive       *bool            `json:"is_active"`
	Note           *string          `json:"note"`
}

// RecurringListQuery status 取 active/inactive
type RecurringListQuery struct {
	Search        string `form:"search"`
	Status        string `form:"status"`
	PaymentStatus string `form:"payment_status"`
	Type          string `form:"type"`
}

// TransitionResult 一次付款状态迁移的结果
type TransitionResult struct {
	Definition *model.RecurringDefinition `json:"definition"`
	Entry      *model.LedgerEntry         `json:"entry,omitempty"`
	Removed    int64                      `json:"removed_entries,omitempty"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Reset   int `json:"reset"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type RecurringSummary struct {
	MonthlyTotal  decimal.Decimal            `json:"monthly_total"`
	AnnualTotal   decimal.Decimal            `json:"annual_total"`
	ActiveCount   int                        `json:"active_count"`
	InactiveCount int                        `json:"inactive_count"`
	PaidCount     int                        `json:"paid_count"`
	UnpaidCount   int                        `json:"unpaid_count"`
	NextDue       *model.RecurringDefinition `json:"next_due,omitempty"`
}

func (s *RecurringService) Create(ctx context.Context, req *CreateRecurringRequest) (*model.RecurringDefinition, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	typ := req.Type
	if typ == "" {
		typ = model.TypeExpense
	}
	if !model.ValidType(typ) {
		return nil, ErrInvalidType
	}
	if req.CategoryID <= 0 {
		return nil, ErrInvalidCategory
	}
	freq := schedule.Monthly
	if req.Frequency != "" {
		if freq, err = schedule.ParseFrequency(req.Frequency); err != nil {
			return nil, ErrInvalidFrequency
		}
	}
	start, err := schedule.ParseDate(req.StartDate)
	if err != nil {
		return nil, ErrInvalidDate
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	def := &model.RecurringDefinition{
		ID:             idgen.NextID(),
		OwnerID:        ownerID,
		Name:           name,
		Amount:         req.Amount,
		Type:           typ,
		CategoryID:     req.CategoryID,
		AccountID:      req.AccountID,
		Frequency:      freq,
		StartDate:      start,
		NextOccurrence: start,
		IsActive:       active,
		PaymentStatus:  model.PaymentStatusUnpaid,
		Note:           strings.TrimSpace(req.Note),
	}
	if err := s.store.Recurring().Create(ctx, def); err != nil {
		return nil, fmt.Errorf("创建周期账单失败: %w", err)
	}

	log.Printf("[RecurringService] 创建周期账单: id=%d, owner=%s, frequency=%s, next=%s",
		def.ID, ownerID, def.Frequency, schedule.FormatDate(def.NextOccurrence))
	return def, nil
}

func (s *RecurringService) Get(ctx context.Context, id int64) (*model.RecurringDefinition, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Recurring().GetByID(ctx, ownerID, id)
}

// List 先对当前用户执行一次过期重置，再返回列表
func (s *RecurringService) List(ctx context.Context, q *RecurringListQuery) ([]*model.RecurringDefinition, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.SweepOwner(ctx); err != nil {
		log.Printf("[RecurringService] 列表前自动重置失败: owner=%s, err=%v", ownerID, err)
	}

	filter := repository.RecurringFilter{
		Search:        strings.TrimSpace(q.Search),
		PaymentStatus: q.PaymentStatus,
		Type:          q.Type,
	}
	switch q.Status {
	case "":
	case "active":
		active := true
		filter.Active = &active
	case "inactive":
		active := false
		filter.Active = &active
	default:
		return nil, fmt.Errorf("%w: status 只能是 active 或 inactive", ErrInvalidFilter)
	}
	if filter.PaymentStatus != "" && filter.PaymentStatus != model.PaymentStatusPaid && filter.PaymentStatus != model.PaymentStatusUnpaid {
		return nil, fmt.Errorf("%w: payment_status 只能是 paid 或 unpaid", ErrInvalidFilter)
	}
	if filter.Type != "" && !model.ValidType(filter.Type) {
		return nil, ErrInvalidType
	}

	return s.store.Recurring().List(ctx, ownerID, filter)
}

// Update 部分更新字段，不改变付款状态，也不生成或删除流水
func (s *RecurringService) Update(ctx context.Context, id int64, req *UpdateRecurringRequest) (*model.RecurringDefinition, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	var u repository.RecurringUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		u.Name = &name
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		u.Amount = req.Amount
	}
	if req.Type != nil {
		if !model.ValidType(*req.Type) {
			return nil, ErrInvalidType
		}
		u.Type = req.Type
	}
	if req.CategoryID != nil {
		if *req.CategoryID <= 0 {
			return nil, ErrInvalidCategory
		}
		u.CategoryID = req.CategoryID
	}
	if req.ClearAccount {
		var none *int64
		u.AccountID = &none
	} else if req.AccountID != nil {
		account := req.AccountID
		u.AccountID = &account
	}
	if req.Frequency != nil {
		freq, err := schedule.ParseFrequency(*req.Frequency)
		if err != nil {
			return nil, ErrInvalidFrequency
		}
		u.Frequency = &freq
	}
	if req.NextOccurrence != nil {
		next, err := schedule.ParseDate(*req.NextOccurrence)
		if err != nil {
			return nil, ErrInvalidDate
		}
		u.NextOccurrence = &next
	}
	if req.IsActive != nil {
		u.IsActive = req.IsActive
	}
	if req.Note != nil {
		note := strings.TrimSpace(*req.Note)
		u.Note = &note
	}
	if u.Empty() {
		return nil, ErrNothingToUpdate
	}

	if err := s.store.Recurring().Update(ctx, ownerID, id, u); err != nil {
		return nil, err
	}
	return s.store.Recurring().GetByID(ctx, ownerID, id)
}

// SetActive 只修改启用状态
func (s *RecurringService) SetActive(ctx context.Context, id int64, active bool) (*model.RecurringDefinition, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.Recurring().Update(ctx, ownerID, id, repository.RecurringUpdate{IsActive: &active}); err != nil {
		return nil, err
	}
	return s.store.Recurring().GetByID(ctx, ownerID, id)
}

// Delete 只删除账单本身，已生成的流水保留
func (s *RecurringService) Delete(ctx context.Context, id int64) error {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Recurring().Delete(ctx, ownerID, id); err != nil {
		return err
	}
	log.Printf("[RecurringService] 删除周期账单: id=%d, owner=%s", id, ownerID)
	return nil
}

// Toggle 已付则撤销，否则标记已付
func (s *RecurringService) Toggle(ctx context.Context, id int64) (*TransitionResult, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	def, err := s.store.Recurring().GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if def.IsPaid() {
		return s.MarkUnpaid(ctx, id)
	}
	return s.MarkPaid(ctx, id)
}

// MarkPaid UNPAID -> PAID
func (s *RecurringService) MarkPaid(ctx context.Context, id int64) (*TransitionResult, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.RecurringKey(id))
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	result := &TransitionResult{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		def, err := tx.Recurring().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if def.IsPaid() {
			return repository.ErrPaymentStatusInvalid
		}

		categoryID := def.CategoryID
		defID := def.ID
		entry := &model.LedgerEntry{
			ID:                    idgen.NextID(),
			OwnerID:               ownerID,
			Amount:                def.Amount,
			Type:                  def.Type,
			CategoryID:            &categoryID,
			AccountID:             def.AccountID,
			TransactionDate:       def.NextOccurrence,
			Note:                  fmt.Sprintf(recurringNoteFormat, def.Name),
			RecurringDefinitionID: &defID,
		}
		if err := tx.Ledger().Create(ctx, entry); err != nil {
			return fmt.Errorf("写入流水失败: %w", err)
		}

		newDue := schedule.Advance(def.NextOccurrence, def.Frequency)
		if err := tx.Recurring().TransitionPayment(ctx, ownerID, id, model.PaymentStatusUnpaid, model.PaymentStatusPaid, &newDue); err != nil {
			return &PartialTransitionError{DefinitionID: id, Action: ActionMarkPaid, Step: StepUpdateDefinition, Err: err}
		}

		if err := writeEvent(ctx, tx, s.cfg.Kafka.Topic.RecurringEvents, model.EventRecurringPaid, id, ownerID, map[string]interface{}{
			"entry_id":        entry.ID,
			"amount":          def.Amount.String(),
			"type":            def.Type,
			"paid_for":        schedule.FormatDate(def.NextOccurrence),
			"next_occurrence": schedule.FormatDate(newDue),
		}); err != nil {
			return &PartialTransitionError{DefinitionID: id, Action: ActionMarkPaid, Step: StepWriteEvent, Err: err}
		}

		def.PaymentStatus = model.PaymentStatusPaid
		def.NextOccurrence = newDue
		result.Definition = def
		result.Entry = entry
		return nil
	})
	if err != nil {
		s.recordFailure(ActionMarkPaid, id, err)
		return nil, err
	}

	metrics.RecurringTransitions.WithLabelValues(ActionMarkPaid, "ok").Inc()
	log.Printf("[RecurringService] 标记已付: id=%d, owner=%s, entry=%d, next=%s",
		id, ownerID, result.Entry.ID, schedule.FormatDate(result.Definition.NextOccurrence))
	return result, nil
}

// MarkUnpaid PAID -> UNPAID，next_occurrence 保持不变
func (s *RecurringService) MarkUnpaid(ctx context.Context, id int64) (*TransitionResult, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.RecurringKey(id))
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	result := &TransitionResult{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		def, err := tx.Recurring().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !def.IsPaid() {
			return repository.ErrPaymentStatusInvalid
		}

		removed, err := tx.Ledger().DeleteByRecurringID(ctx, ownerID, id)
		if err != nil {
			return fmt.Errorf("删除关联流水失败: %w", err)
		}

		if err := tx.Recurring().TransitionPayment(ctx, ownerID, id, model.PaymentStatusPaid, model.PaymentStatusUnpaid, nil); err != nil {
			return &PartialTransitionError{DefinitionID: id, Action: ActionMarkUnpaid, Step: StepUpdateDefinition, Err: err}
		}

		if err := writeEvent(ctx, tx, s.cfg.Kafka.Topic.RecurringEvents, model.EventRecurringUnpaid, id, ownerID, map[string]interface{}{
			"removed_entries": removed,
			"next_occurrence": schedule.FormatDate(def.NextOccurrence),
		}); err != nil {
			return &PartialTransitionError{DefinitionID: id, Action: ActionMarkUnpaid, Step: StepWriteEvent, Err: err}
		}

		def.PaymentStatus = model.PaymentStatusUnpaid
		result.Definition = def
		result.Removed = removed
		return nil
	})
	if err != nil {
		s.recordFailure(ActionMarkUnpaid, id, err)
		return nil, err
	}

	if result.Removed == 0 {
		log.Printf("[RecurringService] 撤销付款时未找到关联流水: id=%d", id)
	}
	metrics.RecurringTransitions.WithLabelValues(ActionMarkUnpaid, "ok").Inc()
	log.Printf("[RecurringService] 撤销付款: id=%d, owner=%s, removed=%d", id, ownerID, result.Removed)
	return result, nil
}

func (s *RecurringService) recordFailure(action string, id int64, err error) {
	var partial *PartialTransitionError
	switch {
	case errors.As(err, &partial):
		metrics.RecurringPartialFailures.WithLabelValues(partial.Step).Inc()
		metrics.RecurringTransitions.WithLabelValues(action, "error").Inc()
		log.Printf("[RecurringService] 迁移部分失败（已回滚）: id=%d, action=%s, step=%s, err=%v",
			id, action, partial.Step, partial.Err)
	case errors.Is(err, repository.ErrPaymentStatusInvalid), errors.Is(err, repository.ErrRecurringNotFound):
		metrics.RecurringTransitions.WithLabelValues(action, "rejected").Inc()
	default:
		metrics.RecurringTransitions.WithLabelValues(action, "error").Inc()
		log.Printf("[RecurringService] 迁移失败: id=%d, action=%s, err=%v", id, action, err)
	}
}

// SweepOwner 重置当前用户已付但已过期的账单
func (s *RecurringService) SweepOwner(ctx context.Context) (*SweepResult, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	today := s.today()
	limit := s.cfg.Business.SweepBatchSize
	result := &SweepResult{}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		defs, err := s.store.Recurring().ListStalePaid(ctx, ownerID, today, afterID, limit)
		if err != nil {
			return result, fmt.Errorf("查询过期账单失败: %w", err)
		}
		for _, def := range defs {
			afterID = def.ID
			s.resetOne(ctx, def, today, result)
		}
		if len(defs) < limit {
			break
		}
	}

	if result.Reset > 0 || result.Failed > 0 {
		log.Printf("[RecurringService] 自动重置完成: owner=%s, reset=%d, skipped=%d, failed=%d",
			ownerID, result.Reset, result.Skipped, result.Failed)
	}
	return result, nil
}

// SweepAll 跨用户重置，后台任务和命令行使用
func (s *RecurringService) SweepAll(ctx context.Context) (*SweepResult, error) {
	today := s.today()
	limit := s.cfg.Business.SweepBatchSize
	result := &SweepResult{}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		defs, err := s.store.Recurring().ListAllStalePaid(ctx, today, afterID, limit)
		if err != nil {
			return result, fmt.Errorf("查询过期账单失败: %w", err)
		}
		for _, def := range defs {
			afterID = def.ID
			s.resetOne(ctx, def, today, result)
		}
		if len(defs) < limit {
			break
		}
	}

	if result.Reset > 0 || result.Failed > 0 {
		log.Printf("[RecurringService] 全量自动重置完成: checked=%d, reset=%d, skipped=%d, failed=%d",
			result.Checked, result.Reset, result.Skipped, result.Failed)
	}
	return result, nil
}

// resetOne 单行失败只记日志，不影响其它行
func (s *RecurringService) resetOne(ctx context.Context, candidate *model.RecurringDefinition, today time.Time, result *SweepResult) {
	result.Checked++
	id := candidate.ID
	ownerID := candidate.OwnerID

	unlock, err := s.locker.Lock(ctx, lock.RecurringKey(id))
	if err != nil {
		result.Failed++
		log.Printf("[RecurringService] 自动重置获取锁失败: id=%d, err=%v", id, err)
		return
	}
	defer unlock()

	var reset bool
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		// 加锁后重新读取，期间用户可能已经手动变更
		def, err := tx.Recurring().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !def.IsPaid() || !def.NextOccurrence.Before(today) {
			return nil
		}

		newDue := schedule.Advance(def.NextOccurrence, def.Frequency)
		if err := tx.Recurring().TransitionPayment(ctx, ownerID, id, model.PaymentStatusPaid, model.PaymentStatusUnpaid, &newDue); err != nil {
			return err
		}
		if err := writeEvent(ctx, tx, s.cfg.Kafka.Topic.RecurringEvents, model.EventRecurringAutoReset, id, ownerID, map[string]interface{}{
			"previous_occurrence": schedule.FormatDate(def.NextOccurrence),
			"next_occurrence":     schedule.FormatDate(newDue),
		}); err != nil {
			return err
		}
		reset = true
		return nil
	})

	switch {
	case err != nil && (errors.Is(err, repository.ErrRecurringNotFound) || errors.Is(err, repository.ErrPaymentStatusInvalid)):
		result.Skipped++
	case err != nil:
		result.Failed++
		metrics.RecurringTransitions.WithLabelValues(ActionAutoReset, "error").Inc()
		log.Printf("[RecurringService] 自动重置失败: id=%d, owner=%s, err=%v", id, ownerID, err)
	case !reset:
		result.Skipped++
	default:
		result.Reset++
		metrics.SweepResets.Inc()
		metrics.RecurringTransitions.WithLabelValues(ActionAutoReset, "ok").Inc()
	}
}

// Summary 启用中账单的月度折算合计、年度合计和最近到期项
func (s *RecurringService) Summary(ctx context.Context) (*RecurringSummary, error) {
	ownerID, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	defs, err := s.store.Recurring().List(ctx, ownerID, repository.RecurringFilter{})
	if err != nil {
		return nil, err
	}

	summary := &RecurringSummary{
		MonthlyTotal: decimal.Zero,
		AnnualTotal:  decimal.Zero,
	}
	for _, def := range defs {
		if def.IsPaid() {
			summary.PaidCount++
		} else {
			summary.UnpaidCount++
		}
		if !def.IsActive {
			summary.InactiveCount++
			continue
		}
		summary.ActiveCount++
		summary.MonthlyTotal = summary.MonthlyTotal.Add(schedule.MonthlyEquivalent(def.Amount, def.Frequency))
		// 列表已按 next_occurrence 升序
		if summary.NextDue == nil {
			summary.NextDue = def
		}
	}
	summary.MonthlyTotal = summary.MonthlyTotal.Round(2)
	summary.AnnualTotal = summary.MonthlyTotal.Mul(decimal.NewFromInt(12))
	return summary, nil
}

// AuditReport 状态与流水不一致的账单
type AuditReport struct {
	Checked          int     `json:"checked"`
	PaidWithoutEntry []int64 `json:"paid_without_entry"`
}

func (r *AuditReport) Violations() int {
	return len(r.PaidWithoutEntry)
}

// Audit 遍历所有账单，检查 paid 至少有一条关联流水。只报告，不修复。
// 自动重置保留历史流水，所以 unpaid 带流水、paid 带多条流水都是正常状态。
func (s *RecurringService) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{}
	limit := s.cfg.Business.SweepBatchSize

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		defs, err := s.store.Recurring().ListAll(ctx, afterID, limit)
		if err != nil {
			return report, fmt.Errorf("查询周期账单失败: %w", err)
		}
		for _, def := range defs {
			afterID = def.ID
			report.Checked++
			n, err := s.store.Ledger().CountByRecurringID(ctx, def.OwnerID, def.ID)
			if err != nil {
				log.Printf("[RecurringService] 统计关联流水失败: id=%d, err=%v", def.ID, err)
				continue
			}
			if def.IsPaid() && n == 0 {
				report.PaidWithoutEntry = append(report.PaidWithoutEntry, def.ID)
			}
		}
		if len(defs) < limit {
			break
		}
	}
	return report, nil
}
