package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/schedule"

	"github.com/shopspring/decimal"
)

const (
	testOwner = "0b7e7c1e-5a8f-4c7d-8d0e-2f6a3b9c1d11"
	otherUser = "9f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromString("auth:\n  jwt_secret: test\nbusiness:\n  sweep_batch_size: 2\n")
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	return cfg
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := schedule.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func ownerCtx() context.Context {
	return WithOwner(context.Background(), testOwner)
}

// fixedNow 2024-01-20
func fixedNow() time.Time {
	return time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
}

func newRecurringFixture(t *testing.T, store repository.Store) *RecurringService {
	t.Helper()
	svc := NewRecurringService(store, nil, testConfig(t))
	svc.SetClock(fixedNow)
	return svc
}

func createDef(t *testing.T, svc *RecurringService, start, freq string) *model.RecurringDefinition {
	t.Helper()
	def, err := svc.Create(ownerCtx(), &CreateRecurringRequest{
		Name:       "Rent",
		Amount:     decimal.NewFromInt(1500),
		CategoryID: 1,
		Frequency:  freq,
		StartDate:  start,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return def
}

func linkedCount(t *testing.T, store repository.Store, id int64) int64 {
	t.Helper()
	n, err := store.Ledger().CountByRecurringID(context.Background(), testOwner, id)
	if err != nil {
		t.Fatalf("CountByRecurringID() error = %v", err)
	}
	return n
}

func TestRecurringService_RequiresOwnerBeforeStore(t *testing.T) {
	// store 为 nil，任何存储调用都会 panic
	svc := NewRecurringService(nil, nil, testConfig(t))
	ctx := context.Background()

	checks := map[string]func() error{
		"Create": func() error {
			_, err := svc.Create(ctx, &CreateRecurringRequest{Name: "x", Amount: decimal.NewFromInt(1), CategoryID: 1, StartDate: "2024-01-01"})
			return err
		},
		"Get":        func() error { _, err := svc.Get(ctx, 1); return err },
		"List":       func() error { _, err := svc.List(ctx, &RecurringListQuery{}); return err },
		"Update":     func() error { _, err := svc.Update(ctx, 1, &UpdateRecurringRequest{}); return err },
		"SetActive":  func() error { _, err := svc.SetActive(ctx, 1, false); return err },
		"Delete":     func() error { return svc.Delete(ctx, 1) },
		"Toggle":     func() error { _, err := svc.Toggle(ctx, 1); return err },
		"MarkPaid":   func() error { _, err := svc.MarkPaid(ctx, 1); return err },
		"MarkUnpaid": func() error { _, err := svc.MarkUnpaid(ctx, 1); return err },
		"SweepOwner": func() error { _, err := svc.SweepOwner(ctx); return err },
		"Summary":    func() error { _, err := svc.Summary(ctx); return err },
	}
	for name, fn := range checks {
		if err := fn(); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("%s() error = %v, want ErrNotAuthenticated", name, err)
		}
	}
}

func TestRecurringService_CreateDefaults(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)

	def := createDef(t, svc, "2024-01-15", "")
	if def.Frequency != schedule.Monthly {
		t.Errorf("Frequency = %q, want monthly", def.Frequency)
	}
	if def.Type != model.TypeExpense {
		t.Errorf("Type = %q, want expense", def.Type)
	}
	if !def.IsActive || def.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("IsActive = %v, PaymentStatus = %q, want true/unpaid", def.IsActive, def.PaymentStatus)
	}
	if !def.NextOccurrence.Equal(mustDate(t, "2024-01-15")) {
		t.Errorf("NextOccurrence = %v, want start date", def.NextOccurrence)
	}
}

func TestRecurringService_CreateValidation(t *testing.T) {
	svc := newRecurringFixture(t, repository.NewMemoryStore())
	base := func() *CreateRecurringRequest {
		return &CreateRecurringRequest{Name: "Gym", Amount: decimal.NewFromInt(30), CategoryID: 2, StartDate: "2024-01-01"}
	}

	tests := []struct {
		name   string
		mutate func(r *CreateRecurringRequest)
		want   error
	}{
		{"blank name", func(r *CreateRecurringRequest) { r.Name = "  " }, ErrInvalidName},
		{"zero amount", func(r *CreateRecurringRequest) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *CreateRecurringRequest) { r.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"bad type", func(r *CreateRecurringRequest) { r.Type = "transfer" }, ErrInvalidType},
		{"bad frequency", func(r *CreateRecurringRequest) { r.Frequency = "hourly" }, ErrInvalidFrequency},
		{"bad date", func(r *CreateRecurringRequest) { r.StartDate = "15/01/2024" }, ErrInvalidDate},
		{"no category", func(r *CreateRecurringRequest) { r.CategoryID = 0 }, ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			if _, err := svc.Create(ownerCtx(), req); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecurringService_MonthlyRentScenario(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	res, err := svc.MarkPaid(ownerCtx(), def.ID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if res.Entry == nil {
		t.Fatal("MarkPaid() returned no entry")
	}
	if got := schedule.FormatDate(res.Entry.TransactionDate); got != "2024-01-15" {
		t.Errorf("entry date = %s, want 2024-01-15", got)
	}
	if !res.Entry.Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("entry amount = %s, want 1500", res.Entry.Amount)
	}
	if res.Entry.Note != "Rent — recurring payment" {
		t.Errorf("entry note = %q", res.Entry.Note)
	}
	if res.Entry.RecurringDefinitionID == nil || *res.Entry.RecurringDefinitionID != def.ID {
		t.Errorf("entry recurring ref = %v, want %d", res.Entry.RecurringDefinitionID, def.ID)
	}

	got, _ := svc.Get(ownerCtx(), def.ID)
	if got.PaymentStatus != model.PaymentStatusPaid {
		t.Errorf("PaymentStatus = %q, want paid", got.PaymentStatus)
	}
	if d := schedule.FormatDate(got.NextOccurrence); d != "2024-02-15" {
		t.Errorf("NextOccurrence = %s, want 2024-02-15", d)
	}
	if n := linkedCount(t, store, def.ID); n != 1 {
		t.Errorf("linked entries = %d, want 1", n)
	}

	if _, err := svc.MarkUnpaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkUnpaid() error = %v", err)
	}
	got, _ = svc.Get(ownerCtx(), def.ID)
	if got.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("PaymentStatus = %q, want unpaid", got.PaymentStatus)
	}
	if d := schedule.FormatDate(got.NextOccurrence); d != "2024-02-15" {
		t.Errorf("NextOccurrence after unpaid = %s, want 2024-02-15 (not reverted)", d)
	}
	if n := linkedCount(t, store, def.ID); n != 0 {
		t.Errorf("linked entries = %d, want 0", n)
	}
}

func TestRecurringService_MarkPaidAdvancesStrictly(t *testing.T) {
	for _, freq := range []string{"daily", "weekly", "monthly", "yearly"} {
		t.Run(freq, func(t *testing.T) {
			store := repository.NewMemoryStore()
			svc := newRecurringFixture(t, store)
			def := createDef(t, svc, "2024-01-31", freq)

			res, err := svc.MarkPaid(ownerCtx(), def.ID)
			if err != nil {
				t.Fatalf("MarkPaid() error = %v", err)
			}
			if !res.Definition.NextOccurrence.After(def.NextOccurrence) {
				t.Errorf("NextOccurrence = %v, want after %v", res.Definition.NextOccurrence, def.NextOccurrence)
			}
			want := schedule.Advance(def.NextOccurrence, schedule.Frequency(freq))
			if !res.Definition.NextOccurrence.Equal(want) {
				t.Errorf("NextOccurrence = %v, want %v", res.Definition.NextOccurrence, want)
			}
			if n := linkedCount(t, store, def.ID); n != 1 {
				t.Errorf("linked entries = %d, want 1", n)
			}
		})
	}
}

func TestRecurringService_RejectsRepeatedTransition(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	if _, err := svc.MarkUnpaid(ownerCtx(), def.ID); !errors.Is(err, repository.ErrPaymentStatusInvalid) {
		t.Errorf("MarkUnpaid() on unpaid error = %v, want ErrPaymentStatusInvalid", err)
	}
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); !errors.Is(err, repository.ErrPaymentStatusInvalid) {
		t.Errorf("second MarkPaid() error = %v, want ErrPaymentStatusInvalid", err)
	}
	if n := linkedCount(t, store, def.ID); n != 1 {
		t.Errorf("linked entries = %d, want 1", n)
	}
}

func TestRecurringService_ToggleRoundTripNeverTwoEntries(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "weekly")

	wantStatus := []string{model.PaymentStatusPaid, model.PaymentStatusUnpaid, model.PaymentStatusPaid, model.PaymentStatusUnpaid, model.PaymentStatusPaid}
	for i, want := range wantStatus {
		res, err := svc.Toggle(ownerCtx(), def.ID)
		if err != nil {
			t.Fatalf("Toggle() #%d error = %v", i, err)
		}
		if res.Definition.PaymentStatus != want {
			t.Errorf("Toggle() #%d status = %q, want %q", i, res.Definition.PaymentStatus, want)
		}
		n := linkedCount(t, store, def.ID)
		if n > 1 {
			t.Fatalf("Toggle() #%d left %d linked entries", i, n)
		}
		if (want == model.PaymentStatusPaid) != (n == 1) {
			t.Errorf("Toggle() #%d status %q with %d linked entries", i, want, n)
		}
	}

	// 三次 paid，每次都从上次的 next_occurrence 往后推
	got, _ := svc.Get(ownerCtx(), def.ID)
	if d := schedule.FormatDate(got.NextOccurrence); d != "2024-02-05" {
		t.Errorf("NextOccurrence = %s, want 2024-02-05", d)
	}
}

func TestRecurringService_ConcurrentMarkPaid(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.MarkPaid(ownerCtx(), def.ID); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("successful MarkPaid = %d, want 1", success)
	}
	if n := linkedCount(t, store, def.ID); n != 1 {
		t.Errorf("linked entries = %d, want 1", n)
	}
}

func TestRecurringService_DeleteKeepsLedgerEntry(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	res, err := svc.MarkPaid(ownerCtx(), def.ID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if err := svc.Delete(ownerCtx(), def.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.Get(ownerCtx(), def.ID); !errors.Is(err, repository.ErrRecurringNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRecurringNotFound", err)
	}
	entry, err := store.Ledger().GetByID(context.Background(), testOwner, res.Entry.ID)
	if err != nil {
		t.Fatalf("ledger entry gone after definition delete: %v", err)
	}
	if entry.RecurringDefinitionID == nil || *entry.RecurringDefinitionID != def.ID {
		t.Errorf("orphan reference = %v, want %d", entry.RecurringDefinitionID, def.ID)
	}
}

func TestRecurringService_NotFound(t *testing.T) {
	svc := newRecurringFixture(t, repository.NewMemoryStore())
	if _, err := svc.MarkPaid(ownerCtx(), 404); !errors.Is(err, repository.ErrRecurringNotFound) {
		t.Errorf("MarkPaid() error = %v, want ErrRecurringNotFound", err)
	}
	if _, err := svc.Toggle(ownerCtx(), 404); !errors.Is(err, repository.ErrRecurringNotFound) {
		t.Errorf("Toggle() error = %v, want ErrRecurringNotFound", err)
	}
	if err := svc.Delete(ownerCtx(), 404); !errors.Is(err, repository.ErrRecurringNotFound) {
		t.Errorf("Delete() error = %v, want ErrRecurringNotFound", err)
	}
}

func TestRecurringService_OwnerIsolation(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	other := WithOwner(context.Background(), otherUser)
	if _, err := svc.MarkPaid(other, def.ID); !errors.Is(err, repository.ErrRecurringNotFound) {
		t.Errorf("MarkPaid() by other owner error = %v, want ErrRecurringNotFound", err)
	}
	list, err := svc.List(other, &RecurringListQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() by other owner = %d items, want 0", len(list))
	}
}

func TestRecurringService_UpdateLeavesPaymentAlone(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	name := "Apartment rent"
	amount := decimal.NewFromInt(1600)
	freq := "yearly"
	got, err := svc.Update(ownerCtx(), def.ID, &UpdateRecurringRequest{Name: &name, Amount: &amount, Frequency: &freq})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != name || !got.Amount.Equal(amount) || got.Frequency != schedule.Yearly {
		t.Errorf("Update() = %+v", got)
	}
	if got.PaymentStatus != model.PaymentStatusPaid {
		t.Errorf("PaymentStatus = %q, want paid", got.PaymentStatus)
	}
	if d := schedule.FormatDate(got.NextOccurrence); d != "2024-02-15" {
		t.Errorf("NextOccurrence = %s, want unchanged 2024-02-15", d)
	}
	if n := linkedCount(t, store, def.ID); n != 1 {
		t.Errorf("linked entries = %d, want 1", n)
	}

	if _, err := svc.Update(ownerCtx(), def.ID, &UpdateRecurringRequest{}); !errors.Is(err, ErrNothingToUpdate) {
		t.Errorf("empty Update() error = %v, want ErrNothingToUpdate", err)
	}
}

func TestRecurringService_SetActive(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	got, err := svc.SetActive(ownerCtx(), def.ID, false)
	if err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if got.IsActive {
		t.Error("IsActive = true, want false")
	}
	if got.PaymentStatus != model.PaymentStatusPaid || linkedCount(t, store, def.ID) != 1 {
		t.Error("SetActive() changed payment state")
	}
}

func TestRecurringService_SweepResetsStalePaid(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)

	// 2023-12-19 标记已付后 next = 2024-01-19，即"今天"(2024-01-20) 的前一天
	stale := createDef(t, svc, "2023-12-19", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), stale.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	// next = 2024-01-20，不早于今天，不应被重置
	fresh := createDef(t, svc, "2023-12-20", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), fresh.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	// 未付款的过期账单不处理
	unpaid := createDef(t, svc, "2023-11-01", "monthly")

	entriesBefore, _ := store.Ledger().Count(context.Background(), testOwner, repository.LedgerFilter{})

	res, err := svc.SweepOwner(ownerCtx())
	if err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if res.Reset != 1 {
		t.Errorf("Reset = %d, want 1", res.Reset)
	}

	got, _ := svc.Get(ownerCtx(), stale.ID)
	if got.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("stale PaymentStatus = %q, want unpaid", got.PaymentStatus)
	}
	if d := schedule.FormatDate(got.NextOccurrence); d != "2024-02-19" {
		t.Errorf("stale NextOccurrence = %s, want 2024-02-19", d)
	}

	got, _ = svc.Get(ownerCtx(), fresh.ID)
	if got.PaymentStatus != model.PaymentStatusPaid {
		t.Errorf("fresh PaymentStatus = %q, want paid", got.PaymentStatus)
	}
	got, _ = svc.Get(ownerCtx(), unpaid.ID)
	if d := schedule.FormatDate(got.NextOccurrence); d != "2023-11-01" {
		t.Errorf("unpaid NextOccurrence = %s, want untouched", d)
	}

	entriesAfter, _ := store.Ledger().Count(context.Background(), testOwner, repository.LedgerFilter{})
	if entriesAfter != entriesBefore {
		t.Errorf("ledger entries %d -> %d, sweep must not touch the ledger", entriesBefore, entriesAfter)
	}
	// 重置不删除上一周期的流水
	if n := linkedCount(t, store, stale.ID); n != 1 {
		t.Errorf("stale linked entries = %d, want 1", n)
	}
}

func TestRecurringService_SweepUsesBusinessTimezone(t *testing.T) {
	store := repository.NewMemoryStore()
	cfg, err := config.LoadFromString("auth:\n  jwt_secret: test\nbusiness:\n  timezone: Asia/Ho_Chi_Minh\n")
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	svc := NewRecurringService(store, nil, cfg)
	// UTC 1月19日 20:00 = 胡志明 1月20日 03:00
	svc.SetClock(func() time.Time { return time.Date(2024, 1, 19, 20, 0, 0, 0, time.UTC) })

	def := createDef(t, svc, "2023-12-19", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	res, err := svc.SweepOwner(ownerCtx())
	if err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if res.Reset != 1 {
		t.Errorf("Reset = %d, want 1 (today is 2024-01-20 in business timezone)", res.Reset)
	}
}

func TestRecurringService_SweepSweepsInactive(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2023-12-01", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := svc.SetActive(ownerCtx(), def.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	if _, err := svc.SweepOwner(ownerCtx()); err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	got, _ := svc.Get(ownerCtx(), def.ID)
	if got.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("inactive PaymentStatus = %q, want unpaid", got.PaymentStatus)
	}
}

func TestRecurringService_ListRunsSweepFirst(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2023-12-10", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	list, err := svc.List(ownerCtx(), &RecurringListQuery{PaymentStatus: model.PaymentStatusPaid})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List(paid) = %d items, want 0 after sweep", len(list))
	}

	list, err = svc.List(ownerCtx(), &RecurringListQuery{Status: "active", Search: "RENT"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("List(active, RENT) = %+v", list)
	}

	if _, err := svc.List(ownerCtx(), &RecurringListQuery{Status: "archived"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("List(archived) error = %v, want ErrInvalidFilter", err)
	}
}

func TestRecurringService_SweepAllPagesAcrossOwners(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)

	ctxs := []context.Context{ownerCtx(), WithOwner(context.Background(), otherUser)}
	var ids []int64
	for _, ctx := range ctxs {
		for i := 0; i < 3; i++ {
			def, err := svc.Create(ctx, &CreateRecurringRequest{
				Name: "Sub", Amount: decimal.NewFromInt(10), CategoryID: 1, StartDate: "2023-12-01",
			})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if _, err := svc.MarkPaid(ctx, def.ID); err != nil {
				t.Fatalf("MarkPaid() error = %v", err)
			}
			ids = append(ids, def.ID)
		}
	}

	res, err := svc.SweepAll(context.Background())
	if err != nil {
		t.Fatalf("SweepAll() error = %v", err)
	}
	if res.Reset != len(ids) {
		t.Errorf("Reset = %d, want %d (batch size 2)", res.Reset, len(ids))
	}
}

// faultyStore 在指定账单的 TransitionPayment 上注入错误
type faultyStore struct {
	repository.Store
	fail func(id int64) error
}

func (f *faultyStore) Recurring() repository.RecurringStore {
	return faultyRecurring{RecurringStore: f.Store.Recurring(), fail: f.fail}
}

func (f *faultyStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&faultyStore{Store: tx, fail: f.fail})
	})
}

type faultyRecurring struct {
	repository.RecurringStore
	fail func(id int64) error
}

func (r faultyRecurring) TransitionPayment(ctx context.Context, ownerID string, id int64, from, to string, next *time.Time) error {
	if err := r.fail(id); err != nil {
		return err
	}
	return r.RecurringStore.TransitionPayment(ctx, ownerID, id, from, to, next)
}

var errInjected = errors.New("injected store failure")

func TestRecurringService_MarkPaidRollsBackOnPartialFailure(t *testing.T) {
	mem := repository.NewMemoryStore()
	store := &faultyStore{Store: mem, fail: func(int64) error { return errInjected }}
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	_, err := svc.MarkPaid(ownerCtx(), def.ID)
	var partial *PartialTransitionError
	if !errors.As(err, &partial) {
		t.Fatalf("MarkPaid() error = %v, want PartialTransitionError", err)
	}
	if partial.Step != StepUpdateDefinition || partial.Action != ActionMarkPaid {
		t.Errorf("partial = %+v", partial)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("MarkPaid() error does not wrap the store failure: %v", err)
	}

	if n := linkedCount(t, mem, def.ID); n != 0 {
		t.Errorf("linked entries = %d, want 0 after rollback", n)
	}
	got, _ := mem.Recurring().GetByID(context.Background(), testOwner, def.ID)
	if got.PaymentStatus != model.PaymentStatusUnpaid || schedule.FormatDate(got.NextOccurrence) != "2024-01-15" {
		t.Errorf("definition changed after rollback: status=%q next=%s", got.PaymentStatus, schedule.FormatDate(got.NextOccurrence))
	}
	pending, _ := mem.Outbox().GetPendingMessages(context.Background(), 10)
	if len(pending) != 0 {
		t.Errorf("outbox messages = %d, want 0 after rollback", len(pending))
	}
}

func TestRecurringService_MarkUnpaidRollsBackOnPartialFailure(t *testing.T) {
	mem := repository.NewMemoryStore()
	var failing bool
	store := &faultyStore{Store: mem, fail: func(int64) error {
		if failing {
			return errInjected
		}
		return nil
	}}
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	failing = true
	_, err := svc.MarkUnpaid(ownerCtx(), def.ID)
	var partial *PartialTransitionError
	if !errors.As(err, &partial) || partial.Action != ActionMarkUnpaid {
		t.Fatalf("MarkUnpaid() error = %v, want PartialTransitionError", err)
	}
	if n := linkedCount(t, mem, def.ID); n != 1 {
		t.Errorf("linked entries = %d, want 1 restored after rollback", n)
	}
}

func TestRecurringService_SweepIsBestEffort(t *testing.T) {
	mem := repository.NewMemoryStore()
	var broken int64
	store := &faultyStore{Store: mem, fail: func(id int64) error {
		if id == broken {
			return errInjected
		}
		return nil
	}}
	svc := newRecurringFixture(t, store)

	var ids []int64
	for i := 0; i < 3; i++ {
		def := createDef(t, svc, "2023-12-01", "monthly")
		if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
			t.Fatalf("MarkPaid() error = %v", err)
		}
		ids = append(ids, def.ID)
	}
	broken = ids[0]

	res, err := svc.SweepOwner(ownerCtx())
	if err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if res.Failed != 1 || res.Reset != 2 {
		t.Errorf("SweepOwner() = %+v, want 1 failed and 2 reset", res)
	}
	got, _ := mem.Recurring().GetByID(context.Background(), testOwner, broken)
	if got.PaymentStatus != model.PaymentStatusPaid {
		t.Errorf("broken row status = %q, want still paid", got.PaymentStatus)
	}
}

func TestRecurringService_SweepContinuesPastFailedPage(t *testing.T) {
	mem := repository.NewMemoryStore()
	broken := map[int64]bool{}
	store := &faultyStore{Store: mem, fail: func(id int64) error {
		if broken[id] {
			return errInjected
		}
		return nil
	}}
	svc := newRecurringFixture(t, store)

	var ids []int64
	for i := 0; i < 3; i++ {
		def := createDef(t, svc, "2023-12-01", "monthly")
		if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
			t.Fatalf("MarkPaid() error = %v", err)
		}
		ids = append(ids, def.ID)
	}
	// sweep_batch_size=2，第一页全部失败
	broken[ids[0]] = true
	broken[ids[1]] = true

	res, err := svc.SweepOwner(ownerCtx())
	if err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if res.Failed != 2 || res.Reset != 1 {
		t.Errorf("SweepOwner() = %+v, want 2 failed and 1 reset", res)
	}
	got, _ := mem.Recurring().GetByID(context.Background(), testOwner, ids[2])
	if got.PaymentStatus != model.PaymentStatusUnpaid {
		t.Errorf("row after failed page status = %q, want unpaid", got.PaymentStatus)
	}
}

func TestRecurringService_WritesOutboxEvents(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2024-01-15", "monthly")

	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := svc.MarkUnpaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkUnpaid() error = %v", err)
	}

	msgs, _ := store.Outbox().GetPendingMessages(context.Background(), 10)
	if len(msgs) != 2 {
		t.Fatalf("outbox messages = %d, want 2", len(msgs))
	}
	wantEvents := []string{model.EventRecurringPaid, model.EventRecurringUnpaid}
	for i, msg := range msgs {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if payload["event"] != wantEvents[i] {
			t.Errorf("msg %d event = %v, want %s", i, payload["event"], wantEvents[i])
		}
		if msg.Topic != "fintrack.recurring" {
			t.Errorf("msg %d topic = %q", i, msg.Topic)
		}
	}
	if msgs[0].MessageKey != msgs[1].MessageKey {
		t.Errorf("events of one definition use different keys: %q vs %q", msgs[0].MessageKey, msgs[1].MessageKey)
	}
}

func TestRecurringService_Summary(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	ctx := ownerCtx()

	mk := func(name string, amount int64, freq, start string, active bool) *model.RecurringDefinition {
		def, err := svc.Create(ctx, &CreateRecurringRequest{
			Name: name, Amount: decimal.NewFromInt(amount), CategoryID: 1,
			Frequency: freq, StartDate: start, IsActive: &active,
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		return def
	}
	mk("Coffee", 10, "daily", "2024-02-01", true)
	mk("Groceries", 100, "weekly", "2024-01-25", true)
	insurance := mk("Insurance", 1200, "yearly", "2024-01-22", true)
	mk("Old gym", 50, "monthly", "2024-01-21", false)
	if _, err := svc.MarkPaid(ctx, insurance.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	// 10*30 + 100*4.33 + 1200/12 = 833
	if !sum.MonthlyTotal.Equal(decimal.NewFromInt(833)) {
		t.Errorf("MonthlyTotal = %s, want 833", sum.MonthlyTotal)
	}
	if !sum.AnnualTotal.Equal(decimal.NewFromInt(9996)) {
		t.Errorf("AnnualTotal = %s, want 9996", sum.AnnualTotal)
	}
	if sum.ActiveCount != 3 || sum.InactiveCount != 1 {
		t.Errorf("active/inactive = %d/%d, want 3/1", sum.ActiveCount, sum.InactiveCount)
	}
	if sum.PaidCount != 1 || sum.UnpaidCount != 3 {
		t.Errorf("paid/unpaid = %d/%d, want 1/3", sum.PaidCount, sum.UnpaidCount)
	}
	if sum.NextDue == nil || sum.NextDue.Name != "Groceries" {
		t.Errorf("NextDue = %+v, want Groceries", sum.NextDue)
	}
}

func TestRecurringService_Audit(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	ctx := context.Background()

	healthy := createDef(t, svc, "2024-01-15", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), healthy.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	// 用户直接删除了自动生成的流水
	lost := createDef(t, svc, "2024-01-16", "monthly")
	res, err := svc.MarkPaid(ownerCtx(), lost.ID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := store.Ledger().DeleteByIDs(ctx, testOwner, []int64{res.Entry.ID}); err != nil {
		t.Fatalf("DeleteByIDs() error = %v", err)
	}
	// 自动重置后再次付款，两条流水都保留
	rolled := createDef(t, svc, "2023-12-01", "monthly")
	if _, err := svc.MarkPaid(ownerCtx(), rolled.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := svc.SweepOwner(ownerCtx()); err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if _, err := svc.MarkPaid(ownerCtx(), rolled.ID); err != nil {
		t.Fatalf("MarkPaid() after sweep error = %v", err)
	}

	report, err := svc.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if report.Checked != 3 {
		t.Errorf("Checked = %d, want 3", report.Checked)
	}
	if len(report.PaidWithoutEntry) != 1 || report.PaidWithoutEntry[0] != lost.ID {
		t.Errorf("PaidWithoutEntry = %v, want [%d]", report.PaidWithoutEntry, lost.ID)
	}
	if report.Violations() != 1 {
		t.Errorf("Violations() = %d, want 1", report.Violations())
	}
}

func TestRecurringService_PaidAgainAfterSweepIsConsistent(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newRecurringFixture(t, store)
	def := createDef(t, svc, "2023-12-01", "monthly")

	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	res, err := svc.SweepOwner(ownerCtx())
	if err != nil {
		t.Fatalf("SweepOwner() error = %v", err)
	}
	if res.Reset != 1 {
		t.Fatalf("SweepOwner() = %+v, want 1 reset", res)
	}
	if _, err := svc.MarkPaid(ownerCtx(), def.ID); err != nil {
		t.Fatalf("MarkPaid() after sweep error = %v", err)
	}
	if n := linkedCount(t, store, def.ID); n != 2 {
		t.Fatalf("linked entries = %d, want 2", n)
	}

	report, err := svc.Audit(context.Background())
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if report.Violations() != 0 {
		t.Errorf("Audit() = %+v, want no violations", report)
	}

	undo, err := svc.MarkUnpaid(ownerCtx(), def.ID)
	if err != nil {
		t.Fatalf("MarkUnpaid() error = %v", err)
	}
	if undo.Removed != 2 {
		t.Errorf("Removed = %d, want 2", undo.Removed)
	}
	report, _ = svc.Audit(context.Background())
	if report.Violations() != 0 {
		t.Errorf("Audit() after undo = %+v, want no violations", report)
	}
}
