// Package rules evaluates categorization rules against transactions.
//
// Active rules are kept in a RuleSet sorted by priority (ascending), then
// creation time, then id. The first rule whose conditions all match wins;
// its actions run in order and evaluation stops. Rules only ever change
// the category, category id and budget of a transaction.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"ledger/internal/core"
)

// CategoryResolver finds a category by name, creating it if needed.
type CategoryResolver interface {
	ResolveCategory(ctx context.Context, name string) (core.Category, error)
}

// BudgetResolver confirms that a set_budget target exists. When the
// Engine's resolver also implements it, a rule pointing at a missing
// budget fails instead of tagging transactions with a dangling id.
type BudgetResolver interface {
	ResolveBudget(ctx context.Context, id string) (core.Budget, error)
}

type compiledRule struct {
	rule  core.Rule
	preds []Predicate
}

func (c compiledRule) matches(t core.Transaction) bool {
	if len(c.preds) == 0 {
		return c.rule.CatchAll
	}
	for _, p := range c.preds {
		if !p(t) {
			return false
		}
	}
	return true
}

// RuleSet is an immutable, evaluation-ordered view of the active rules.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles and orders the active rules. Rules that fail to
// compile are skipped and logged.
func NewRuleSet(all []core.Rule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range all {
		if !r.IsActive {
			continue
		}
		c, err := compileRule(r)
		if err != nil {
			slog.Warn("Skipping rule that failed to compile", "rule_id", r.ID, "rule_name", r.Name, "error", err)
			continue
		}
		rs.rules = append(rs.rules, c)
	}
	sort.SliceStable(rs.rules, func(i, j int) bool {
		a, b := rs.rules[i].rule, rs.rules[j].rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return rs
}

func compileRule(r core.Rule) (compiledRule, error) {
	if len(r.Conditions) == 0 && !r.CatchAll {
		return compiledRule{}, fmt.Errorf("%w: rule %q has no conditions and is not catch-all", core.ErrValidation, r.Name)
	}
	c := compiledRule{rule: r, preds: make([]Predicate, 0, len(r.Conditions))}
	for _, cond := range r.Conditions {
		p, err := compile(cond)
		if err != nil {
			return compiledRule{}, err
		}
		c.preds = append(c.preds, p)
	}
	return c, nil
}

func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rules returns the active rules in evaluation order.
func (rs *RuleSet) Rules() []core.Rule {
	out := make([]core.Rule, len(rs.rules))
	for i, c := range rs.rules {
		out[i] = c.rule
	}
	return out
}

// First returns the first rule matching t.
func (rs *RuleSet) First(t core.Transaction) (core.Rule, bool) {
	for _, c := range rs.rules {
		if c.matches(t) {
			return c.rule, true
		}
	}
	return core.Rule{}, false
}

// MatchConditions compiles conds into one predicate that holds when
// every condition does. No conditions match everything.
func MatchConditions(conds []core.Condition) (Predicate, error) {
	preds := make([]Predicate, 0, len(conds))
	for _, cond := range conds {
		p, err := compile(cond)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return func(t core.Transaction) bool {
		for _, p := range preds {
			if !p(t) {
				return false
			}
		}
		return true
	}, nil
}

// Match describes the outcome of applying rules to one transaction.
type Match struct {
	Matched  bool
	RuleID   string
	RuleName string
	Changed  bool
}

// Engine holds the current rule set. Reload replaces it after rule CRUD.
type Engine struct {
	mu       sync.RWMutex
	set      *RuleSet
	resolver CategoryResolver
}

func NewEngine(resolver CategoryResolver) *Engine {
	return &Engine{set: &RuleSet{}, resolver: resolver}
}

// Reload rebuilds the sorted rule set.
func (e *Engine) Reload(all []core.Rule) {
	set := NewRuleSet(all)
	e.mu.Lock()
	e.set = set
	e.mu.Unlock()
}

// Set returns the current rule set.
func (e *Engine) Set() *RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.set
}

// Apply runs the current rule set against t.
func (e *Engine) Apply(ctx context.Context, t core.Transaction) (core.Transaction, Match, error) {
	return e.ApplySet(ctx, e.Set(), t)
}

// ApplySet runs rs against t and returns the possibly recategorized copy.
func (e *Engine) ApplySet(ctx context.Context, rs *RuleSet, t core.Transaction) (core.Transaction, Match, error) {
	rule, ok := rs.First(t)
	if !ok {
		return t, Match{}, nil
	}
	out, err := e.applyActions(ctx, rule, t)
	if err != nil {
		return t, Match{Matched: true, RuleID: rule.ID, RuleName: rule.Name}, err
	}
	return out, Match{
		Matched:  true,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Changed:  categorizationChanged(t, out),
	}, nil
}

func (e *Engine) applyActions(ctx context.Context, rule core.Rule, t core.Transaction) (core.Transaction, error) {
	for _, a := range rule.Actions {
		switch a.Type {
		case core.ActionSetCategory:
			name := strings.TrimSpace(a.Value)
			if e.resolver == nil {
				t.Category, t.CategoryID = name, ""
				continue
			}
			cat, err := e.resolver.ResolveCategory(ctx, name)
			if err != nil {
				return t, fmt.Errorf("rule %q: resolve category %q: %w", rule.Name, name, err)
			}
			t.Category, t.CategoryID = cat.Name, cat.ID
		case core.ActionSetBudget:
			id := strings.TrimSpace(a.Value)
			if br, ok := e.resolver.(BudgetResolver); ok {
				b, err := br.ResolveBudget(ctx, id)
				if err != nil {
					return t, fmt.Errorf("rule %q: resolve budget %q: %w", rule.Name, id, err)
				}
				id = b.ID
			}
			t.BudgetID = id
		default:
			return t, fmt.Errorf("%w: rule %q: unsupported action %q", core.ErrValidation, rule.Name, a.Type)
		}
	}
	return t, nil
}

func categorizationChanged(a, b core.Transaction) bool {
	return a.Category != b.Category || a.CategoryID != b.CategoryID || a.BudgetID != b.BudgetID
}
