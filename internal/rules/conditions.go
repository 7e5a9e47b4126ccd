package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Evaluator tests one condition against a transaction. Compile runs once
// per rule set build so evaluation never re-parses the condition value.
type Evaluator interface {
	Compile(value string) (Predicate, error)
}

// Predicate is a compiled condition.
type Predicate func(t core.Transaction) bool

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(value string) (Predicate, error)

func (f EvaluatorFunc) Compile(value string) (Predicate, error) { return f(value) }

var (
	registryMu sync.RWMutex
	registry   = map[core.ConditionType]Evaluator{
		core.ConditionDescriptionContains:      textMatch(func(t core.Transaction) string { return t.Description }, strings.Contains),
		core.ConditionDescriptionStartsWith:    textMatch(func(t core.Transaction) string { return t.Description }, strings.HasPrefix),
		core.ConditionDescriptionEquals:        textMatch(func(t core.Transaction) string { return t.Description }, equal),
		core.ConditionDestinationNameContains:  textMatch(func(t core.Transaction) string { return t.DestinationName }, nonEmpty(strings.Contains)),
		core.ConditionDestinationNameEquals:    textMatch(func(t core.Transaction) string { return t.DestinationName }, nonEmpty(equal)),
		core.ConditionSourceAccountEquals:      idMatch(func(t core.Transaction) string { return t.SourceAccountID }),
		core.ConditionDestinationAccountEquals: idMatch(func(t core.Transaction) string { return t.DestinationAccountID }),
		core.ConditionAmountGreaterThan:        amountMatch(func(a, v decimal.Decimal) bool { return a.GreaterThan(v) }),
		core.ConditionAmountLessThan:           amountMatch(func(a, v decimal.Decimal) bool { return a.LessThan(v) }),
		core.ConditionAmountEquals:             amountMatch(func(a, v decimal.Decimal) bool { return a.Equal(v.Round(2)) }),
	}
)

// Register installs or replaces the evaluator for a condition type.
func Register(ct core.ConditionType, ev Evaluator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[ct] = ev
}

func lookup(ct core.ConditionType) (Evaluator, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ev, ok := registry[ct]
	return ev, ok
}

func compile(c core.Condition) (Predicate, error) {
	ev, ok := lookup(c.Type)
	if !ok {
		return nil, fmt.Errorf("%w: no evaluator for condition %q", core.ErrValidation, c.Type)
	}
	return ev.Compile(c.Value)
}

func equal(a, b string) bool { return a == b }

func nonEmpty(cmp func(string, string) bool) func(string, string) bool {
	return func(field, value string) bool { return field != "" && cmp(field, value) }
}

// textMatch compares a transaction field with the condition value,
// case-insensitively.
func textMatch(field func(core.Transaction) string, cmp func(field, value string) bool) Evaluator {
	return EvaluatorFunc(func(value string) (Predicate, error) {
		want := strings.ToLower(value)
		return func(t core.Transaction) bool {
			return cmp(strings.ToLower(field(t)), want)
		}, nil
	})
}

func idMatch(field func(core.Transaction) string) Evaluator {
	return EvaluatorFunc(func(value string) (Predicate, error) {
		want := strings.TrimSpace(value)
		return func(t core.Transaction) bool {
			got := field(t)
			return got != "" && strings.EqualFold(got, want)
		}, nil
	})
}

func amountMatch(cmp func(amount, value decimal.Decimal) bool) Evaluator {
	return EvaluatorFunc(func(value string) (Predicate, error) {
		v, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: amount condition %q: %v", core.ErrValidation, value, err)
		}
		return func(t core.Transaction) bool {
			return cmp(t.Amount.Decimal(), v)
		}, nil
	})
}
