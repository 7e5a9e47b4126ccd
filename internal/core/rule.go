package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultRulePriority is assigned when a rule is created without one.
const DefaultRulePriority = 100

type ConditionType string

const (
	ConditionDescriptionContains      ConditionType = "description_contains"
	ConditionDescriptionStartsWith    ConditionType = "description_starts_with"
	ConditionDescriptionEquals        ConditionType = "description_equals"
	ConditionSourceAccountEquals      ConditionType = "source_account_equals"
	ConditionDestinationAccountEquals ConditionType = "destination_account_equals"
	ConditionDestinationNameContains  ConditionType = "destination_name_contains"
	ConditionDestinationNameEquals    ConditionType = "destination_name_equals"
	ConditionAmountGreaterThan        ConditionType = "amount_greater_than"
	ConditionAmountLessThan           ConditionType = "amount_less_than"
	ConditionAmountEquals             ConditionType = "amount_equals"
)

func (c ConditionType) isAmount() bool {
	return c == ConditionAmountGreaterThan || c == ConditionAmountLessThan || c == ConditionAmountEquals
}

type ActionType string

const (
	ActionSetCategory ActionType = "set_category"
	ActionSetBudget   ActionType = "set_budget"
)

type (
	Condition struct {
		Type  ConditionType `json:"type"`
		Value string        `json:"value"`
	}

	Action struct {
		Type  ActionType `json:"type"`
		Value string     `json:"value"`
	}

	// Rule matches when every condition matches. A rule without
	// conditions is only valid when CatchAll is set, in which case it
	// matches every transaction.
	Rule struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Description string      `json:"description,omitempty"`
		IsActive    bool        `json:"is_active"`
		Priority    int         `json:"priority"`
		CatchAll    bool        `json:"catch_all"`
		Conditions  []Condition `json:"conditions"`
		Actions     []Action    `json:"actions"`
		GroupID     string      `json:"group_id,omitempty"`
		CreatedAt   time.Time   `json:"created_at"`
		UpdatedAt   time.Time   `json:"updated_at"`
	}
)

var knownConditions = map[ConditionType]bool{
	ConditionDescriptionContains:      true,
	ConditionDescriptionStartsWith:    true,
	ConditionDescriptionEquals:        true,
	ConditionSourceAccountEquals:      true,
	ConditionDestinationAccountEquals: true,
	ConditionDestinationNameContains:  true,
	ConditionDestinationNameEquals:    true,
	ConditionAmountGreaterThan:        true,
	ConditionAmountLessThan:           true,
	ConditionAmountEquals:             true,
}

func (r Rule) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(r.Conditions) == 0 && !r.CatchAll {
		problems = append(problems, "a rule without conditions must be marked catch_all")
	}
	if len(r.Conditions) > 0 && r.CatchAll {
		problems = append(problems, "a catch_all rule cannot have conditions")
	}
	if len(r.Actions) == 0 {
		problems = append(problems, "at least one action is required")
	}
	for i, c := range r.Conditions {
		if !knownConditions[c.Type] {
			problems = append(problems, fmt.Sprintf("condition %d: unknown type %q", i, c.Type))
			continue
		}
		if c.Type.isAmount() {
			if _, err := decimal.NewFromString(strings.TrimSpace(c.Value)); err != nil {
				problems = append(problems, fmt.Sprintf("condition %d: %q is not a number", i, c.Value))
			}
		} else if strings.TrimSpace(c.Value) == "" {
			problems = append(problems, fmt.Sprintf("condition %d: value is required", i))
		}
	}
	for i, a := range r.Actions {
		switch a.Type {
		case ActionSetCategory:
			if strings.TrimSpace(a.Value) == "" {
				problems = append(problems, fmt.Sprintf("action %d: category name is required", i))
			}
		case ActionSetBudget:
			if _, err := uuid.Parse(a.Value); err != nil {
				problems = append(problems, fmt.Sprintf("action %d: invalid budget id %q", i, a.Value))
			}
		default:
			problems = append(problems, fmt.Sprintf("action %d: unknown type %q", i, a.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: invalid rule: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
