package service

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/model"
	"fintrack/internal/repository"

	"github.com/shopspring/decimal"
)

func addEntry(t *testing.T, svc *LedgerService, amount int64, typ, date, note string, category *int64) *model.LedgerEntry {
	t.Helper()
	e, err := svc.Create(ownerCtx(), &CreateTransactionRequest{
		Amount:          decimal.NewFromInt(amount),
		Type:            typ,
		CategoryID:      category,
		TransactionDate: date,
		Note:            note,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return e
}

func int64Ptr(v int64) *int64 { return &v }

func TestLedgerService_CreateAndGet(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewLedgerService(store, testConfig(t))

	e := addEntry(t, svc, 250, model.TypeExpense, "2024-01-10", " lunch ", int64Ptr(3))
	if e.RecurringDefinitionID != nil {
		t.Errorf("direct entry has recurring ref %v", *e.RecurringDefinitionID)
	}
	if e.Note != "lunch" {
		t.Errorf("Note = %q, want trimmed", e.Note)
	}

	got, err := svc.Get(ownerCtx(), e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Amount = %s, want 250", got.Amount)
	}

	msgs, _ := store.Outbox().GetPendingMessages(context.Background(), 10)
	if len(msgs) != 1 || msgs[0].Topic != "fintrack.ledger" {
		t.Errorf("outbox = %+v, want one ledger event", msgs)
	}
}

func TestLedgerService_CreateValidation(t *testing.T) {
	svc := NewLedgerService(repository.NewMemoryStore(), testConfig(t))
	tests := []struct {
		name string
		req  CreateTransactionRequest
		want error
	}{
		{"zero", CreateTransactionRequest{Amount: decimal.Zero, Type: model.TypeIncome, TransactionDate: "2024-01-01"}, ErrInvalidAmount},
		{"type", CreateTransactionRequest{Amount: decimal.NewFromInt(1), Type: "gift", TransactionDate: "2024-01-01"}, ErrInvalidType},
		{"date", CreateTransactionRequest{Amount: decimal.NewFromInt(1), Type: model.TypeIncome, TransactionDate: "yesterday"}, ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := svc.Create(ownerCtx(), &req); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := svc.Create(context.Background(), &CreateTransactionRequest{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Create() without owner error = %v, want ErrNotAuthenticated", err)
	}
}

func TestLedgerService_UpdateKeepsRecurringRef(t *testing.T) {
	store := repository.NewMemoryStore()
	recurring := newRecurringFixture(t, store)
	def := createDef(t, recurring, "2024-01-15", "monthly")
	res, err := recurring.MarkPaid(ownerCtx(), def.ID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	svc := NewLedgerService(store, testConfig(t))
	amount := decimal.NewFromInt(1450)
	note := "negotiated"
	got, err := svc.Update(ownerCtx(), res.Entry.ID, &UpdateTransactionRequest{Amount: &amount, Note: &note})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.Amount.Equal(amount) || got.Note != note {
		t.Errorf("Update() = %+v", got)
	}
	if got.RecurringDefinitionID == nil || *got.RecurringDefinitionID != def.ID {
		t.Errorf("recurring ref = %v, want %d", got.RecurringDefinitionID, def.ID)
	}

	if _, err := svc.Update(ownerCtx(), res.Entry.ID, &UpdateTransactionRequest{}); !errors.Is(err, ErrNothingToUpdate) {
		t.Errorf("empty Update() error = %v, want ErrNothingToUpdate", err)
	}
	if _, err := svc.Update(ownerCtx(), 12345, &UpdateTransactionRequest{Note: &note}); !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Errorf("Update() missing error = %v, want ErrTransactionNotFound", err)
	}
}

func TestLedgerService_ListFiltersAndPaging(t *testing.T) {
	svc := NewLedgerService(repository.NewMemoryStore(), testConfig(t))
	food := int64Ptr(1)
	addEntry(t, svc, 100, model.TypeExpense, "2024-01-05", "Coffee beans", food)
	addEntry(t, svc, 300, model.TypeExpense, "2024-01-20", "Dinner", food)
	addEntry(t, svc, 5000, model.TypeIncome, "2024-01-25", "Salary", nil)
	addEntry(t, svc, 80, model.TypeExpense, "2024-02-02", "coffee", nil)

	page, err := svc.List(ownerCtx(), &TransactionListQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 4 || len(page.Items) != 4 {
		t.Fatalf("List() total=%d items=%d, want 4/4", page.Total, len(page.Items))
	}
	if page.Items[0].Note != "coffee" {
		t.Errorf("first item = %q, want newest (coffee)", page.Items[0].Note)
	}

	tests := []struct {
		name string
		q    TransactionListQuery
		want int64
	}{
		{"search", TransactionListQuery{Search: "COFFEE"}, 2},
		{"category", TransactionListQuery{CategoryID: 1}, 2},
		{"type", TransactionListQuery{Type: model.TypeIncome}, 1},
		{"date range", TransactionListQuery{DateFrom: "2024-01-05", DateTo: "2024-01-20"}, 2},
		{"amount range", TransactionListQuery{MinAmount: "90", MaxAmount: "300"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := svc.Count(ownerCtx(), &tt.q)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != tt.want {
				t.Errorf("Count() = %d, want %d", n, tt.want)
			}
		})
	}

	page, err = svc.List(ownerCtx(), &TransactionListQuery{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 4 || len(page.Items) != 1 || page.Items[0].Note != "Coffee beans" {
		t.Errorf("page 2 = total %d, %d items", page.Total, len(page.Items))
	}

	if _, err := svc.List(ownerCtx(), &TransactionListQuery{MinAmount: "abc"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("List() bad amount error = %v, want ErrInvalidFilter", err)
	}
}

func TestLedgerService_BulkOperations(t *testing.T) {
	svc := NewLedgerService(repository.NewMemoryStore(), testConfig(t))
	a := addEntry(t, svc, 10, model.TypeExpense, "2024-01-01", "a", nil)
	b := addEntry(t, svc, 20, model.TypeExpense, "2024-01-02", "b", nil)
	c := addEntry(t, svc, 30, model.TypeExpense, "2024-01-03", "c", nil)

	n, err := svc.UpdateCategory(ownerCtx(), []int64{a.ID, b.ID}, 7)
	if err != nil || n != 2 {
		t.Fatalf("UpdateCategory() = %d, %v; want 2", n, err)
	}
	got, _ := svc.Get(ownerCtx(), b.ID)
	if got.CategoryID == nil || *got.CategoryID != 7 {
		t.Errorf("CategoryID = %v, want 7", got.CategoryID)
	}

	deleted, err := svc.DeleteMany(ownerCtx(), []int64{a.ID, c.ID, 424242})
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteMany() = %d, %v; want 2", deleted, err)
	}
	if _, err := svc.Get(ownerCtx(), a.ID); !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Errorf("Get() deleted error = %v", err)
	}

	if _, err := svc.DeleteMany(ownerCtx(), nil); !errors.Is(err, ErrEmptyIDs) {
		t.Errorf("DeleteMany(nil) error = %v, want ErrEmptyIDs", err)
	}
	// 其它用户不能删除
	other := WithOwner(context.Background(), otherUser)
	if n, _ := svc.DeleteMany(other, []int64{b.ID}); n != 0 {
		t.Errorf("DeleteMany() by other owner = %d, want 0", n)
	}
}
