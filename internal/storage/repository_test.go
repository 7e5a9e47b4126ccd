package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testAccount(id, name string) core.Account {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return core.Account{
		ID:        id,
		Name:      name,
		Type:      core.AccountType{Kind: core.OnBudget, Subtype: "Checking"},
		Currency:  "EUR",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testTx(id, src, dst string, cents int64, d time.Time) core.Transaction {
	return core.Transaction{
		ID:                   id,
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Description:          "row " + id,
		Amount:               core.Cents(cents),
		Date:                 d,
		CreatedAt:            d,
		UpdatedAt:            d,
	}
}

func TestAccountRoundTripAndConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	opening := testTx("open", "a", "", -5000, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	opening.Category = core.CategoryInitialBalance
	if err := repo.CreateAccount(ctx, testAccount("a", "Checking"), &opening); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.FindAccountByName(ctx, "checking")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "a" || got.Type.String() != "On Budget - Checking" {
		t.Fatalf("unexpected account %+v", got)
	}

	if err := repo.CreateAccount(ctx, testAccount("b", "CHECKING"), nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate name should conflict, got %v", err)
	}
	if _, err := repo.GetAccount(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.SetCachedBalance(ctx, "a", core.Cents(5000)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	got, _ = repo.GetAccount(ctx, "a")
	if got.Balance.Cents != 5000 {
		t.Fatalf("balance = %d", got.Balance.Cents)
	}
}

func TestTransactionFilterAndNullables(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, a := range []core.Account{testAccount("a", "A"), testAccount("b", "B")} {
		if err := repo.CreateAccount(ctx, a, nil); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	d := func(day int) time.Time { return time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC) }
	rows := []core.Transaction{testTx("t1", "a", "", 100, d(1)), testTx("t2", "a", "b", 200, d(2)), testTx("t3", "b", "", 300, d(3))}
	rows[0].Category = "Food"
	for _, r := range rows {
		if err := repo.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListTransactions(ctx, store.TransactionFilter{AccountID: "b"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t3" || got[1].ID != "t2" {
		t.Fatalf("unexpected rows %+v", got)
	}
	if got[1].DestinationAccountID != "b" || !got[1].Date.Equal(d(2)) {
		t.Fatalf("row not round-tripped: %+v", got[1])
	}

	food, _ := repo.ListTransactions(ctx, store.TransactionFilter{Category: "FOOD"})
	if len(food) != 1 || food[0].ID != "t1" || food[0].DestinationAccountID != "" {
		t.Fatalf("category filter: %+v", food)
	}
	paged, _ := repo.ListTransactions(ctx, store.TransactionFilter{Offset: 2})
	if len(paged) != 1 || paged[0].ID != "t1" {
		t.Fatalf("offset without limit: %+v", paged)
	}

	if err := repo.CreateTransaction(ctx, testTx("bad", "a", "nope", 1, d(4))); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown destination should be not found, got %v", err)
	}
}

func TestDeleteAccountCascade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, a := range []core.Account{testAccount("a", "Checking"), testAccount("b", "Savings"), testAccount("c", "Cash")} {
		if err := repo.CreateAccount(ctx, a, nil); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	now := time.Now().UTC()
	for _, r := range []core.Transaction{testTx("out", "a", "b", 100, now), testTx("in", "c", "a", 50, now)} {
		if err := repo.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	affected, err := repo.DeleteAccount(ctx, "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(affected) != 2 || affected[0] != "b" || affected[1] != "c" {
		t.Fatalf("affected = %v", affected)
	}
	if _, err := repo.GetTransaction(ctx, "out"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("sourced row should be gone, got %v", err)
	}
	in, err := repo.GetTransaction(ctx, "in")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if in.DestinationAccountID != "" || in.DestinationName != "Checking" {
		t.Fatalf("destination not detached: %+v", in)
	}
}

func TestRuleAndBudgetPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 1, 0)

	b := core.Budget{ID: "bud", Name: "Food", Amount: core.Cents(50000), StartDate: now, EndDate: &end, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateBudget(ctx, b); err != nil {
		t.Fatalf("budget: %v", err)
	}
	gotB, err := repo.GetBudget(ctx, "bud")
	if err != nil || gotB.EndDate == nil || !gotB.EndDate.Equal(end) {
		t.Fatalf("budget round trip: %+v err=%v", gotB, err)
	}

	r := core.Rule{
		ID:         "r1",
		Name:       "Groceries",
		IsActive:   true,
		Priority:   10,
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "groceries"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "Food"}, {Type: core.ActionSetBudget, Value: "6f1c2b1e-5a7d-4c1e-9a43-0c6d8c3f2e10"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.CreateRule(ctx, r); err != nil {
		t.Fatalf("rule: %v", err)
	}
	got, err := repo.GetRule(ctx, "r1")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if len(got.Conditions) != 1 || len(got.Actions) != 2 || got.Actions[1].Type != core.ActionSetBudget {
		t.Fatalf("rule round trip: %+v", got)
	}
	if err := repo.DeleteRule(ctx, "r1"); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if err := repo.DeleteRule(ctx, "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestTransactionDateRoundTripAcrossYears(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateAccount(ctx, testAccount("a", "A"), nil); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dates := map[string]time.Time{
		"early":  time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		"old":    time.Date(1600, 2, 29, 8, 30, 0, 0, time.UTC),
		"recent": time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC),
		"future": time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC),
		"last":   time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC),
	}
	for id, d := range dates {
		if err := repo.CreateTransaction(ctx, testTx(id, "a", "", 1000, d)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	rows, err := repo.ListTransactions(ctx, store.TransactionFilter{AccountID: "a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != len(dates) {
		t.Fatalf("got %d rows, want %d", len(rows), len(dates))
	}
	for _, r := range rows {
		if want := dates[r.ID]; !r.Date.Equal(want) || !r.CreatedAt.Equal(want) {
			t.Errorf("%s: date %v created %v, want %v", r.ID, r.Date, r.CreatedAt, want)
		}
	}

	// only "early", "old" and "recent" fall on or before the instant
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)
	if got := engine.BalanceAt("a", at, rows); got.Cents != -3000 {
		t.Errorf("BalanceAt = %d, want -3000", got.Cents)
	}
	if got := engine.BalanceAt("a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), rows); got.Cents != -2000 {
		t.Errorf("BalanceAt before recent = %d, want -2000", got.Cents)
	}
}

func TestGroupsAndSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	g := core.Group{ID: "g1", Name: "Bills", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateGroup(ctx, core.BudgetGroupKind, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	dup := core.Group{ID: "g2", Name: "bills", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateGroup(ctx, core.BudgetGroupKind, dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate group: err = %v, want ErrConflict", err)
	}
	if err := repo.CreateGroup(ctx, core.RuleGroupKind, dup); err != nil {
		t.Fatalf("rule group with same name: %v", err)
	}
	if _, err := repo.GetGroup(ctx, core.RuleGroupKind, "g1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("kinds must not share rows: err = %v", err)
	}

	b := core.Budget{ID: "b1", Name: "Power", Amount: core.Cents(9000), StartDate: now, GroupID: "g1", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateBudget(ctx, b); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	orphan := b
	orphan.ID, orphan.GroupID = "b2", "missing"
	if err := repo.CreateBudget(ctx, orphan); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("budget in missing group: err = %v, want ErrNotFound", err)
	}

	g.Name, g.Description = "Utilities", "monthly"
	if err := repo.UpdateGroup(ctx, core.BudgetGroupKind, g); err != nil {
		t.Fatalf("update group: %v", err)
	}
	groups, err := repo.ListGroups(ctx, core.BudgetGroupKind)
	if err != nil || len(groups) != 1 || groups[0].Name != "Utilities" || groups[0].Description != "monthly" {
		t.Fatalf("groups = %+v, %v", groups, err)
	}

	if err := repo.DeleteGroup(ctx, core.BudgetGroupKind, "g1"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	got, err := repo.GetBudget(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.GroupID != "" {
		t.Errorf("budget still grouped under %q", got.GroupID)
	}

	if _, err := repo.GetSetting(ctx, core.SettingForecastedMonthlyIncome); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unset setting: err = %v, want ErrNotFound", err)
	}
	for _, v := range []string{"250000", "300000"} {
		if err := repo.PutSetting(ctx, core.SettingForecastedMonthlyIncome, v); err != nil {
			t.Fatalf("put setting: %v", err)
		}
	}
	if v, err := repo.GetSetting(ctx, core.SettingForecastedMonthlyIncome); err != nil || v != "300000" {
		t.Errorf("setting = %q, %v; want 300000", v, err)
	}
}
