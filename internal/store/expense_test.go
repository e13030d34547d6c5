package store

import (
	"testing"
	"time"

	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
)

type expenseFixture struct {
	expenses *ExpenseStore
	home     *model.Home
	alice    *model.User
	bob      *model.User
}

func setupExpenseTestDB(t *testing.T) *expenseFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hs := NewHomeStore(db)
	us := NewUserStore(db)

	home, err := hs.Create("Expense House")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	alice, err := us.Create("alice@example.com", "h", "Alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := us.Create("bob@example.com", "h", "Bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	return &expenseFixture{expenses: NewExpenseStore(db), home: home, alice: alice, bob: bob}
}

func TestExpenseCreateAndList(t *testing.T) {
	f := setupExpenseTestDB(t)
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	e, err := f.expenses.Create(f.home.ID, f.alice.ID, "Cleaning supplies", 2350, day)
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if e.AmountCents != 2350 {
		t.Errorf("amount = %d, want 2350", e.AmountCents)
	}
	if e.PaidByName != "Alice" {
		t.Errorf("paid_by_name = %q, want Alice", e.PaidByName)
	}

	list, err := f.expenses.ListByHome(f.home.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(list) != 1 || list[0].ID != e.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestExpenseListNewestFirst(t *testing.T) {
	f := setupExpenseTestDB(t)

	older := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	if _, err := f.expenses.Create(f.home.ID, f.alice.ID, "Old bill", 1000, older); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if _, err := f.expenses.Create(f.home.ID, f.bob.ID, "New bill", 2000, newer); err != nil {
		t.Fatalf("create new: %v", err)
	}

	list, err := f.expenses.ListByHome(f.home.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(list))
	}
	if list[0].Description != "New bill" {
		t.Errorf("first = %q, want newest", list[0].Description)
	}
}

func TestExpenseTotalsByMember(t *testing.T) {
	f := setupExpenseTestDB(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.expenses.Create(f.home.ID, f.alice.ID, "Internet", 6000, day); err != nil {
		t.Fatalf("create internet: %v", err)
	}
	if _, err := f.expenses.Create(f.home.ID, f.alice.ID, "Groceries", 4000, day); err != nil {
		t.Fatalf("create groceries: %v", err)
	}
	if _, err := f.expenses.Create(f.home.ID, f.bob.ID, "Gas", 3000, day); err != nil {
		t.Fatalf("create gas: %v", err)
	}

	totals, err := f.expenses.TotalsByMember(f.home.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals[f.alice.ID] != 10000 {
		t.Errorf("alice total = %d, want 10000", totals[f.alice.ID])
	}
	if totals[f.bob.ID] != 3000 {
		t.Errorf("bob total = %d, want 3000", totals[f.bob.ID])
	}
}

func TestExpenseDelete(t *testing.T) {
	f := setupExpenseTestDB(t)

	e, err := f.expenses.Create(f.home.ID, f.alice.ID, "Mistake", 100, time.Now().UTC())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.expenses.Delete(e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := f.expenses.GetByID(e.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for deleted expense, got %+v", got)
	}
}
