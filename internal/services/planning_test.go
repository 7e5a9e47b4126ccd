package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/store"
)

func prio(p int) *int { return &p }

func TestRunAllRulesFirstMatchIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	acct := mustCreateAccount(t, svc, "Checking", "On Budget", 100000, day(2025, 1, 1))

	ids := map[string]string{}
	for _, desc := range []string{"Coffee shop", "Gift shop", "Train"} {
		tx, err := svc.CreateTransaction(ctx, TransactionInput{
			SourceAccountID: acct.ID, Description: desc, Amount: core.Cents(500), Date: day(2025, 8, 1),
		})
		if err != nil {
			t.Fatalf("create %s: %v", desc, err)
		}
		ids[desc] = tx.ID
	}

	// "Coffee shop" matches both; the lower priority number wins
	if _, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Shops",
		Priority:   prio(20),
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "shop"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "Shopping"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Coffee",
		Priority:   prio(10),
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "coffee"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "Coffee"}},
	}); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{"Coffee shop": "Coffee", "Gift shop": "Shopping", "Train": ""}
	check := func(pass string) {
		t.Helper()
		for desc, cat := range want {
			got, err := svc.GetTransaction(ctx, ids[desc])
			if err != nil {
				t.Fatal(err)
			}
			if got.Category != cat {
				t.Errorf("%s: %q category = %q, want %q", pass, desc, got.Category, cat)
			}
		}
	}

	first, err := svc.RunAllRules(ctx)
	if err != nil {
		t.Fatalf("RunAllRules: %v", err)
	}
	if first.Scanned != 4 || first.Matched != 2 || first.Modified != 2 {
		t.Errorf("first run = %+v, want 4 scanned 2 matched 2 modified", first)
	}
	check("first run")

	second, err := svc.RunAllRules(ctx)
	if err != nil {
		t.Fatalf("RunAllRules: %v", err)
	}
	if second.Matched != 2 || second.Modified != 0 {
		t.Errorf("second run = %+v, want 2 matched 0 modified", second)
	}
	check("second run")
}

func TestSetBudgetRuleTargetsExistingBudget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	acct := mustCreateAccount(t, svc, "Checking", "On Budget", 100000, day(2025, 1, 1))

	_, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Ghost",
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "market"}},
		Actions:    []core.Action{{Type: core.ActionSetBudget, Value: uuid.NewString()}},
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("rule with unknown budget: err = %v, want ErrValidation", err)
	}

	b, err := svc.CreateBudget(ctx, BudgetInput{Name: "Food", Amount: core.Cents(10000), StartDate: day(2025, 8, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Market",
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "market"}},
		Actions:    []core.Action{{Type: core.ActionSetBudget, Value: b.ID}},
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	tagged, err := svc.CreateTransaction(ctx, TransactionInput{
		SourceAccountID: acct.ID, Description: "market", Amount: core.Cents(700), Date: day(2025, 8, 2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if tagged.BudgetID != b.ID {
		t.Fatalf("budget = %q, want %q", tagged.BudgetID, b.ID)
	}

	// the rule now points at a budget that is gone
	if err := svc.DeleteBudget(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	later, err := svc.CreateTransaction(ctx, TransactionInput{
		SourceAccountID: acct.ID, Description: "market again", Amount: core.Cents(300), Date: day(2025, 8, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if later.BudgetID != "" {
		t.Errorf("dangling budget %q written by rule", later.BudgetID)
	}
	sum, err := svc.RunAllRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Modified != 0 {
		t.Errorf("run = %+v, want nothing modified", sum)
	}
	page, _ := svc.ListTransactions(ctx, store.TransactionFilter{AccountID: acct.ID})
	for _, tx := range page.Items {
		if tx.BudgetID != "" {
			t.Errorf("%s tagged with missing budget %q", tx.Description, tx.BudgetID)
		}
	}
}

func TestBudgetMonthStatusAndForecast(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	acct := mustCreateAccount(t, svc, "Checking", "On Budget", 300000, day(2025, 8, 1))

	got, err := svc.ForecastedMonthlyIncome(ctx)
	if err != nil || got.Cents != 0 {
		t.Fatalf("unset forecast = %v, %v; want 0", got, err)
	}
	if _, err := svc.SetForecastedMonthlyIncome(ctx, core.Cents(-1)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("negative forecast: err = %v, want ErrValidation", err)
	}
	if _, err := svc.SetForecastedMonthlyIncome(ctx, core.Cents(350000)); err != nil {
		t.Fatal(err)
	}

	julyEnd := day(2025, 7, 31)
	for _, in := range []BudgetInput{
		{Name: "Rent", Amount: core.Cents(120000), StartDate: day(2025, 1, 1)},
		{Name: "Summer", Amount: core.Cents(50000), StartDate: day(2025, 6, 1), EndDate: &julyEnd},
		{Name: "Food", Amount: core.Cents(40000), StartDate: day(2025, 8, 15)},
	} {
		if _, err := svc.CreateBudget(ctx, in); err != nil {
			t.Fatalf("create %s: %v", in.Name, err)
		}
	}
	if _, err := svc.CreateTransaction(ctx, TransactionInput{
		SourceAccountID: acct.ID, Description: "lunch", Amount: core.Cents(1500), Date: day(2025, 8, 20),
	}); err != nil {
		t.Fatal(err)
	}

	st, err := svc.BudgetMonthStatus(ctx, 2025, 8)
	if err != nil {
		t.Fatalf("BudgetMonthStatus: %v", err)
	}
	if st.IncomingFunds.Cents != 300000 || st.OutgoingFunds.Cents != 1500 {
		t.Errorf("funds = %+v", st.MonthlyStatus)
	}
	if st.BudgetedAmount.Cents != 160000 || st.RemainingToBudget.Cents != 140000 {
		t.Errorf("budgeted %d remaining %d, want 160000 and 140000", st.BudgetedAmount.Cents, st.RemainingToBudget.Cents)
	}
	if st.ForecastedMonthlyIncome.Cents != 350000 {
		t.Errorf("forecast = %d", st.ForecastedMonthlyIncome.Cents)
	}

	spent, err := svc.UnbudgetedSpent(ctx, 2025, 8)
	if err != nil || spent.Cents != 1500 {
		t.Errorf("unbudgeted = %v, %v; want 1500", spent, err)
	}
	if _, err := svc.UnbudgetedSpent(ctx, 2025, 13); !errors.Is(err, core.ErrValidation) {
		t.Errorf("month 13: err = %v, want ErrValidation", err)
	}

	// the clock is pinned to 2025-09-01
	active, err := svc.ActiveBudgets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("active = %d budgets, want Rent and Food", len(active))
	}
}

func TestGroupsDetachMembersOnDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, core.RuleGroupKind, GroupInput{Name: "Daily"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateGroup(ctx, core.RuleGroupKind, GroupInput{Name: "daily"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate group: err = %v, want ErrConflict", err)
	}
	if _, err := svc.CreateGroup(ctx, core.BudgetGroupKind, GroupInput{Name: "Daily"}); err != nil {
		t.Errorf("budget groups are separate from rule groups: %v", err)
	}
	if _, err := svc.CreateGroup(ctx, "account", GroupInput{Name: "x"}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("unknown kind: err = %v, want ErrValidation", err)
	}

	r, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Coffee",
		GroupID:    g.ID,
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "coffee"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "Coffee"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateRule(ctx, RuleInput{
		Name:       "Lost",
		GroupID:    "missing",
		Conditions: []core.Condition{{Type: core.ConditionDescriptionContains, Value: "x"}},
		Actions:    []core.Action{{Type: core.ActionSetCategory, Value: "X"}},
	}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("rule in unknown group: err = %v, want ErrValidation", err)
	}

	members, err := svc.GroupRules(ctx, g.ID)
	if err != nil || len(members) != 1 || members[0].ID != r.ID {
		t.Fatalf("members = %+v, %v", members, err)
	}

	if err := svc.DeleteGroup(ctx, core.RuleGroupKind, g.ID); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.GroupID != "" {
		t.Errorf("rule still in deleted group %q", got.GroupID)
	}
	if _, err := svc.GroupRules(ctx, g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted group: err = %v, want ErrNotFound", err)
	}
}

func TestPreviewConditions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	acct := mustCreateAccount(t, svc, "Checking", "On Budget", 100000, day(2025, 1, 1))
	for i := 0; i < previewSampleSize+5; i++ {
		if _, err := svc.CreateTransaction(ctx, TransactionInput{
			SourceAccountID: acct.ID, Description: "parking", Amount: core.Cents(200), Date: day(2025, 8, 1).AddDate(0, 0, i%28),
		}); err != nil {
			t.Fatal(err)
		}
	}

	p, err := svc.PreviewConditions(ctx, []core.Condition{{Type: core.ConditionDescriptionEquals, Value: "Parking"}})
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != previewSampleSize+5 || len(p.Sample) != previewSampleSize {
		t.Errorf("total %d sample %d", p.Total, len(p.Sample))
	}
	for i := 1; i < len(p.Sample); i++ {
		if p.Sample[i].Date.After(p.Sample[i-1].Date) {
			t.Fatalf("sample not newest first at %d", i)
		}
	}

	// no conditions match everything the rules may touch, never the opening row
	all, err := svc.PreviewConditions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != previewSampleSize+5 {
		t.Errorf("total = %d, opening row must be left out", all.Total)
	}

	page, _ := svc.ListTransactions(ctx, store.TransactionFilter{Category: "Parking"})
	if len(page.Items) != 0 {
		t.Error("preview changed stored rows")
	}
}
