package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/store"
)

func mustAccount(t *testing.T, s *Store, id, name string) {
	t.Helper()
	a := core.Account{ID: id, Name: name, Type: core.AccountType{Kind: core.OnBudget}, Currency: "EUR"}
	if err := s.CreateAccount(context.Background(), a, nil); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
}

func txAt(id, src, dst string, cents int64, d time.Time) core.Transaction {
	return core.Transaction{ID: id, SourceAccountID: src, DestinationAccountID: dst, Description: id, Amount: core.Cents(cents), Date: d}
}

func TestCreateAccountWithOpening(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := core.Account{ID: "a", Name: "Checking", Currency: "EUR"}
	opening := txAt("open", "a", "", -5000, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	opening.Category = core.CategoryInitialBalance
	if err := s.CreateAccount(ctx, a, &opening); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows, _ := s.ListTransactions(ctx, store.TransactionFilter{AccountID: "a"})
	if len(rows) != 1 || rows[0].ID != "open" {
		t.Fatalf("opening row not stored: %+v", rows)
	}

	err := s.CreateAccount(ctx, core.Account{ID: "b", Name: "checking"}, nil)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate name should conflict, got %v", err)
	}
}

func TestTransactionReferencesAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustAccount(t, s, "a", "A")
	mustAccount(t, s, "b", "B")

	if err := s.CreateTransaction(ctx, txAt("x", "a", "missing", 100, time.Now())); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for unknown destination, got %v", err)
	}

	d := func(day int) time.Time { return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC) }
	rows := []core.Transaction{
		txAt("t1", "a", "", 100, d(1)),
		txAt("t2", "a", "b", 200, d(2)),
		txAt("t3", "b", "", 300, d(3)),
	}
	rows[0].Category = "Food"
	rows[2].BudgetID = "bud"
	for _, r := range rows {
		if err := s.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	cases := []struct {
		name string
		f    store.TransactionFilter
		want []string
	}{
		{"all newest first", store.TransactionFilter{}, []string{"t3", "t2", "t1"}},
		{"account touches", store.TransactionFilter{AccountID: "b"}, []string{"t3", "t2"}},
		{"category case-insensitive", store.TransactionFilter{Category: "food"}, []string{"t1"}},
		{"date window", store.TransactionFilter{From: d(2), Until: d(3)}, []string{"t2"}},
		{"budget", store.TransactionFilter{BudgetID: "bud"}, []string{"t3"}},
		{"unbudgeted", store.TransactionFilter{Unbudgeted: true}, []string{"t2", "t1"}},
		{"paged", store.TransactionFilter{Limit: 1, Offset: 1}, []string{"t2"}},
		{"offset past end", store.TransactionFilter{Offset: 10}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, tc.f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d rows, want %v", len(got), tc.want)
			}
			for i := range tc.want {
				if got[i].ID != tc.want[i] {
					t.Fatalf("row %d = %s, want %s", i, got[i].ID, tc.want[i])
				}
			}
		})
	}
}

func TestDeleteAccountCascade(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustAccount(t, s, "a", "Checking")
	mustAccount(t, s, "b", "Savings")
	mustAccount(t, s, "c", "Cash")
	now := time.Now()
	for _, r := range []core.Transaction{
		txAt("out", "a", "b", 100, now),
		txAt("in", "c", "a", 50, now),
		txAt("other", "b", "c", 10, now),
	} {
		if err := s.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	affected, err := s.DeleteAccount(ctx, "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(affected) != 2 || affected[0] != "b" || affected[1] != "c" {
		t.Fatalf("affected = %v", affected)
	}
	if _, err := s.GetTransaction(ctx, "out"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("sourced row should be deleted, got %v", err)
	}
	in, err := s.GetTransaction(ctx, "in")
	if err != nil {
		t.Fatalf("destination row should survive: %v", err)
	}
	if in.DestinationAccountID != "" || in.DestinationName != "Checking" {
		t.Fatalf("destination not detached: %+v", in)
	}
}

func TestDeleteBudgetClearsTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustAccount(t, s, "a", "A")
	b := core.Budget{ID: "bud", Name: "Food", Amount: core.Cents(100), StartDate: time.Now()}
	if err := s.CreateBudget(ctx, b); err != nil {
		t.Fatalf("budget: %v", err)
	}
	r := txAt("t", "a", "", 10, time.Now())
	r.BudgetID = "bud"
	if err := s.CreateTransaction(ctx, r); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := s.DeleteBudget(ctx, "bud"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.GetTransaction(ctx, "t")
	if got.BudgetID != "" {
		t.Fatalf("budget id not cleared")
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	// No file -> defaults
	s := NewFromFiles(dir)
	cats, _ := s.ListCategories(context.Background())
	if len(cats) == 0 {
		t.Fatalf("expected defaults when file missing")
	}

	content := "# header\nHome: Rent\nHome: Utilities\nRent\nFun\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s = NewFromFiles(dir)
	cats, _ = s.ListCategories(context.Background())
	if len(cats) != 3 || cats[0].Name != "Fun" || cats[1].Name != "Rent" || cats[2].Name != "Utilities" {
		t.Fatalf("unexpected cats: %+v", cats)
	}
	groups, _ := s.ListCategoryGroups(context.Background())
	if len(groups) != 1 || groups[0].Name != "Home" || cats[1].GroupID != groups[0].ID {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestGroupMembershipAndSettings(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateGroup(ctx, core.RuleGroupKind, core.Group{ID: "g", Name: "Daily"}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	rule := core.Rule{
		ID: "r", Name: "Coffee", IsActive: true, GroupID: "g",
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "coffee"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "Coffee"}},
	}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	stray := rule
	stray.ID = "r2"
	if err := s.CreateGroup(ctx, core.BudgetGroupKind, core.Group{ID: "bg", Name: "Home"}); err != nil {
		t.Fatal(err)
	}
	stray.GroupID = "bg"
	if err := s.CreateRule(ctx, stray); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("rule in a budget group: err = %v, want ErrNotFound", err)
	}

	if err := s.DeleteGroup(ctx, core.RuleGroupKind, "g"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	got, _ := s.GetRule(ctx, "r")
	if got.GroupID != "" {
		t.Fatalf("group id not cleared")
	}
	if err := s.DeleteGroup(ctx, core.RuleGroupKind, "g"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}

	if _, err := s.GetSetting(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unset setting: err = %v", err)
	}
	_ = s.PutSetting(ctx, "k", "1")
	_ = s.PutSetting(ctx, "k", "2")
	if v, _ := s.GetSetting(ctx, "k"); v != "2" {
		t.Errorf("setting = %q, want 2", v)
	}
}
