package core

import (
	"fmt"
	"strings"
	"time"
)

// GroupKind says what a Group collects.
type GroupKind string

const (
	RuleGroupKind   GroupKind = "rule"
	BudgetGroupKind GroupKind = "budget"
)

func (k GroupKind) Valid() bool { return k == RuleGroupKind || k == BudgetGroupKind }

// Group is a named folder for rules or budgets. Membership lives on the
// member's GroupID; deleting a group leaves its members ungrouped.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// SettingForecastedMonthlyIncome holds the expected monthly income in cents.
const SettingForecastedMonthlyIncome = "forecasted_monthly_income"

// CheckGroupKind rejects kinds other than rule and budget.
func CheckGroupKind(k GroupKind) error {
	if !k.Valid() {
		return fmt.Errorf("%w: unknown group kind %q", ErrValidation, k)
	}
	return nil
}
