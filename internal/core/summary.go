package core

// MonthlyStatus is the funds flow of on-budget accounts for one month.
type MonthlyStatus struct {
	Year          int   `json:"year"`
	Month         int   `json:"month"` // 1-12
	IncomingFunds Money `json:"incoming_funds"`
	OutgoingFunds Money `json:"outgoing_funds"`
}

// BudgetStatus pairs a budget with its activity.
type BudgetStatus struct {
	Budget
	Spent     Money `json:"spent"`
	Remaining Money `json:"remaining"`
}

// BudgetMonthStatus extends MonthlyStatus with what was planned for the
// month. RemainingToBudget is incoming funds minus the targets of every
// budget whose window overlaps the month.
type BudgetMonthStatus struct {
	MonthlyStatus
	BudgetedAmount          Money `json:"budgeted_amount"`
	RemainingToBudget       Money `json:"remaining_to_budget"`
	ForecastedMonthlyIncome Money `json:"forecasted_monthly_income"`
}

// ConditionPreview is the outcome of trying conditions against the log.
type ConditionPreview struct {
	Total  int           `json:"total"`
	Sample []Transaction `json:"sample"`
}
