package engine

import (
	"reflect"
	"testing"
	"time"

	"ledger/internal/core"
)

func TestMonthlyStatus(t *testing.T) {
	accounts := []core.Account{
		account("chk", "On Budget - Checking"),
		account("cc", "On Budget - Credit Card"),
		account("loan", "Off Budget - Loan"),
	}
	income := tx("salary", "chk", "", -300000, day(2025, 3, 1))
	income.Category = "Salary"
	positiveOpening := opening("ib-cc", "cc", -25000, day(2025, 3, 2)) // a debt opens with amount > 0

	txns := []core.Transaction{
		opening("ib", "chk", 100000, day(2025, 3, 1)),
		income,
		positiveOpening,
		tx("groceries", "cc", "", 4500, day(2025, 3, 10)),
		tx("rent", "chk", "", 120000, day(2025, 3, 31)),
		tx("april", "chk", "", 999, day(2025, 4, 1)),
		tx("loan-interest", "loan", "", 3000, day(2025, 3, 15)),
	}

	status, err := MonthlyStatus(2025, 3, accounts, txns)
	if err != nil {
		t.Fatalf("MonthlyStatus: %v", err)
	}
	if status.IncomingFunds.Cents != 400000 {
		t.Fatalf("incoming = %d, want 400000", status.IncomingFunds.Cents)
	}
	if status.OutgoingFunds.Cents != 124500 {
		t.Fatalf("outgoing = %d, want 124500", status.OutgoingFunds.Cents)
	}

	if _, err := MonthlyStatus(2025, 13, accounts, txns); err == nil {
		t.Fatalf("expected error for month 13")
	}
}

func TestBudgetActivity(t *testing.T) {
	end := day(2025, 1, 31)
	b := core.Budget{ID: "b1", Name: "January", Amount: core.Cents(50000), StartDate: day(2025, 1, 1), EndDate: &end}

	tagged := func(id string, cents int64, d int) core.Transaction {
		t := tx(id, "a", "", cents, day(2025, 1, d))
		t.BudgetID = "b1"
		return t
	}
	late := tx("late", "a", "", 100, day(2025, 1, 31).Add(18*time.Hour))
	late.BudgetID = "b1"
	outside := tx("feb", "a", "", 100, day(2025, 2, 1))
	outside.BudgetID = "b1"

	status := BudgetActivity(b, []core.Transaction{
		tagged("x", 12000, 5),
		tagged("refund", -2000, 6),
		late,
		outside,
		tx("untagged", "a", "", 7777, day(2025, 1, 7)),
	})
	if status.Spent.Cents != 12100 {
		t.Fatalf("spent = %d, want 12100", status.Spent.Cents)
	}
	if status.Remaining.Cents != 37900 {
		t.Fatalf("remaining = %d, want 37900", status.Remaining.Cents)
	}
}

func TestBudgetMonthStatus(t *testing.T) {
	jan31 := day(2025, 1, 31)
	mar1 := day(2025, 3, 1)
	budgets := []core.Budget{
		{ID: "jan", Amount: core.Cents(10000), StartDate: day(2025, 1, 1), EndDate: &jan31},
		{ID: "open", Amount: core.Cents(20000), StartDate: day(2024, 6, 1)},
		{ID: "edge", Amount: core.Cents(40000), StartDate: day(2025, 2, 20), EndDate: &mar1},
		{ID: "later", Amount: core.Cents(80000), StartDate: day(2025, 3, 1)},
	}
	st := core.MonthlyStatus{Year: 2025, Month: 2, IncomingFunds: core.Cents(50000)}

	got := BudgetMonthStatus(st, budgets, core.Cents(300000))
	if got.BudgetedAmount.Cents != 60000 {
		t.Fatalf("budgeted = %d, want 60000", got.BudgetedAmount.Cents)
	}
	if got.RemainingToBudget.Cents != -10000 {
		t.Fatalf("remaining to budget = %d, want -10000", got.RemainingToBudget.Cents)
	}
	if got.ForecastedMonthlyIncome.Cents != 300000 || got.IncomingFunds.Cents != 50000 {
		t.Fatalf("status = %+v", got)
	}
}

func TestUnbudgetedSpent(t *testing.T) {
	accounts := []core.Account{
		account("chk", "On Budget - Checking"),
		account("loan", "Off Budget - Loan"),
	}
	tagged := tx("tagged", "chk", "", 5000, day(2025, 3, 3))
	tagged.BudgetID = "b1"
	txns := []core.Transaction{
		opening("ib", "chk", -1000, day(2025, 1, 1)),
		tx("coffee", "chk", "", 350, day(2025, 3, 2)),
		tx("refund", "chk", "", -200, day(2025, 3, 4)),
		tagged,
		tx("interest", "loan", "", 900, day(2025, 3, 5)),
		tx("april", "chk", "", 1200, day(2025, 4, 1)),
	}

	tests := []struct {
		name        string
		from, until time.Time
		want        int64
	}{
		{"all time", time.Time{}, time.Time{}, 1550},
		{"march", day(2025, 3, 1), day(2025, 4, 1), 350},
		{"before anything", time.Time{}, day(2025, 2, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnbudgetedSpent(accounts, txns, tt.from, tt.until); got.Cents != tt.want {
				t.Errorf("UnbudgetedSpent = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}

func TestActiveBudgets(t *testing.T) {
	end := day(2025, 3, 31)
	budgets := []core.Budget{
		{ID: "march", StartDate: day(2025, 3, 1), EndDate: &end},
		{ID: "open", StartDate: day(2025, 1, 1)},
		{ID: "future", StartDate: day(2025, 4, 1)},
	}

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"last day counts whole day", day(2025, 3, 31).Add(20 * time.Hour), []string{"march", "open"}},
		{"after end", day(2025, 4, 1), []string{"open", "future"}},
		{"before all", day(2024, 12, 31), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, b := range ActiveBudgets(budgets, tt.now) {
				ids = append(ids, b.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("active = %v, want %v", ids, tt.want)
			}
		})
	}
}
