package engine

import (
	"fmt"
	"time"

	"ledger/internal/core"
)

func monthBounds(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func onBudgetIDs(accounts []core.Account) map[string]bool {
	ids := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if a.Type.IsOnBudget() {
			ids[a.ID] = true
		}
	}
	return ids
}

// budgetWindow returns [from, until) for b; until is zero when open ended.
func budgetWindow(b core.Budget) (time.Time, time.Time) {
	from := DayStart(b.StartDate)
	var until time.Time
	if b.EndDate != nil {
		until = DayStart(*b.EndDate).AddDate(0, 0, 1)
	}
	return from, until
}

// MonthlyStatus computes the funds flow of On Budget accounts (any
// subtype) in [monthStart, nextMonthStart). Incoming counts every
// negative-amount row whatever its category; outgoing counts
// positive-amount rows except Initial Balance.
func MonthlyStatus(year, month int, accounts []core.Account, txns []core.Transaction) (core.MonthlyStatus, error) {
	if month < 1 || month > 12 {
		return core.MonthlyStatus{}, fmt.Errorf("%w: month %d out of range", core.ErrValidation, month)
	}
	from, until := monthBounds(year, month)
	onBudget := onBudgetIDs(accounts)

	status := core.MonthlyStatus{Year: year, Month: month}
	for _, t := range txns {
		if !onBudget[t.SourceAccountID] || t.Date.Before(from) || !t.Date.Before(until) {
			continue
		}
		switch {
		case t.Amount.Cents < 0:
			status.IncomingFunds = status.IncomingFunds.Add(t.Amount.Abs())
		case t.Amount.Cents > 0 && !t.IsInitialBalance():
			status.OutgoingFunds = status.OutgoingFunds.Add(t.Amount)
		}
	}
	return status, nil
}

// BudgetActivity sums the outflows tagged with the budget inside its
// window. The end date is inclusive of its whole day.
func BudgetActivity(b core.Budget, txns []core.Transaction) core.BudgetStatus {
	from, until := budgetWindow(b)

	var spent core.Money
	for _, t := range txns {
		if t.BudgetID != b.ID || t.Amount.Cents <= 0 || t.IsInitialBalance() {
			continue
		}
		if t.Date.Before(from) || (!until.IsZero() && !t.Date.Before(until)) {
			continue
		}
		spent = spent.Add(t.Amount)
	}
	return core.BudgetStatus{Budget: b, Spent: spent, Remaining: b.Amount.Sub(spent)}
}

// BudgetMonthStatus adds the month's plan to st. A budget counts toward
// the month when its window overlaps it.
func BudgetMonthStatus(st core.MonthlyStatus, budgets []core.Budget, forecast core.Money) core.BudgetMonthStatus {
	from, until := monthBounds(st.Year, st.Month)
	var budgeted core.Money
	for _, b := range budgets {
		bf, bu := budgetWindow(b)
		if bf.Before(until) && (bu.IsZero() || bu.After(from)) {
			budgeted = budgeted.Add(b.Amount)
		}
	}
	return core.BudgetMonthStatus{
		MonthlyStatus:           st,
		BudgetedAmount:          budgeted,
		RemainingToBudget:       st.IncomingFunds.Sub(budgeted),
		ForecastedMonthlyIncome: forecast,
	}
}

// UnbudgetedSpent sums outflows of On Budget accounts that carry no
// budget, dated in [from, until). Zero bounds are open.
func UnbudgetedSpent(accounts []core.Account, txns []core.Transaction, from, until time.Time) core.Money {
	onBudget := onBudgetIDs(accounts)
	var spent core.Money
	for _, t := range txns {
		if t.BudgetID != "" || !onBudget[t.SourceAccountID] || t.Amount.Cents <= 0 || t.IsInitialBalance() {
			continue
		}
		if (!from.IsZero() && t.Date.Before(from)) || (!until.IsZero() && !t.Date.Before(until)) {
			continue
		}
		spent = spent.Add(t.Amount)
	}
	return spent
}

// ActiveBudgets keeps the budgets whose window contains now.
func ActiveBudgets(budgets []core.Budget, now time.Time) []core.Budget {
	var out []core.Budget
	for _, b := range budgets {
		from, until := budgetWindow(b)
		if !now.Before(from) && (until.IsZero() || now.Before(until)) {
			out = append(out, b)
		}
	}
	return out
}
