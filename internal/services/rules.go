package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/rules"
	"ledger/internal/store"
)

// RuleInput is the writable shape of a rule. Nil IsActive means active;
// nil Priority means core.DefaultRulePriority.
type RuleInput struct {
	Name        string
	Description string
	IsActive    *bool
	Priority    *int
	CatchAll    bool
	Conditions  []core.Condition
	Actions     []core.Action
	GroupID     string
}

func (in RuleInput) applyTo(r *core.Rule) {
	r.Name = strings.TrimSpace(in.Name)
	r.Description = strings.TrimSpace(in.Description)
	r.IsActive = in.IsActive == nil || *in.IsActive
	r.Priority = core.DefaultRulePriority
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	r.CatchAll = in.CatchAll
	r.Conditions = in.Conditions
	r.Actions = in.Actions
	r.GroupID = strings.TrimSpace(in.GroupID)
}

// checkRuleRefs rejects a rule whose group or set_budget target does not exist.
func (s *LedgerService) checkRuleRefs(ctx context.Context, r core.Rule) error {
	if r.GroupID != "" {
		if _, err := s.store.GetGroup(ctx, core.RuleGroupKind, r.GroupID); err != nil {
			return refError("rule group", r.GroupID, err)
		}
	}
	for _, a := range r.Actions {
		if a.Type != core.ActionSetBudget {
			continue
		}
		id := strings.TrimSpace(a.Value)
		if _, err := s.store.GetBudget(ctx, id); err != nil {
			return refError("budget", id, err)
		}
	}
	return nil
}

// refError turns a missing reference into a validation error.
func refError(entity, id string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s %q does not exist", core.ErrValidation, entity, id)
	}
	return err
}

// ResolveBudget satisfies rules.BudgetResolver.
func (s *LedgerService) ResolveBudget(ctx context.Context, id string) (core.Budget, error) {
	return s.store.GetBudget(ctx, id)
}

// previewSampleSize caps the rows returned by PreviewConditions.
const previewSampleSize = 100

// PreviewConditions reports which transactions conds would match without
// changing anything. Rows the engine owns are left out because rules never
// touch them. No conditions match every row.
func (s *LedgerService) PreviewConditions(ctx context.Context, conds []core.Condition) (core.ConditionPreview, error) {
	match, err := rules.MatchConditions(conds)
	if err != nil {
		return core.ConditionPreview{}, err
	}
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return core.ConditionPreview{}, fmt.Errorf("load transactions: %w", err)
	}
	out := core.ConditionPreview{Sample: []core.Transaction{}}
	for _, t := range txns {
		if engineOwned(t) || !match(t) {
			continue
		}
		out.Total++
		if len(out.Sample) < previewSampleSize {
			out.Sample = append(out.Sample, t)
		}
	}
	return out, nil
}

// RunSummary reports a batch rule application.
type RunSummary struct {
	Scanned  int `json:"scanned"`
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
}

func (s *LedgerService) reloadRules(ctx context.Context) error {
	all, err := s.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	s.rules.Reload(all)
	return nil
}

// reloadAfterChange rebuilds the rule set; a failure leaves the previous
// set in place until the next successful reload.
func (s *LedgerService) reloadAfterChange(ctx context.Context) {
	if err := s.reloadRules(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to reload rules", "error", err)
	}
}

func (s *LedgerService) CreateRule(ctx context.Context, in RuleInput) (core.Rule, error) {
	now := s.now()
	r := core.Rule{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.applyTo(&r)
	if err := r.Validate(); err != nil {
		return core.Rule{}, err
	}
	if err := s.checkRuleRefs(ctx, r); err != nil {
		return core.Rule{}, err
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		return core.Rule{}, fmt.Errorf("create rule: %w", err)
	}
	s.reloadAfterChange(ctx)
	return r, nil
}

func (s *LedgerService) GetRule(ctx context.Context, id string) (core.Rule, error) {
	return s.store.GetRule(ctx, id)
}

// ListRules returns every rule in evaluation order, inactive ones included.
func (s *LedgerService) ListRules(ctx context.Context) ([]core.Rule, error) {
	return s.store.ListRules(ctx)
}

func (s *LedgerService) UpdateRule(ctx context.Context, id string, in RuleInput) (core.Rule, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return core.Rule{}, err
	}
	in.applyTo(&r)
	r.UpdatedAt = s.now()
	if err := r.Validate(); err != nil {
		return core.Rule{}, err
	}
	if err := s.checkRuleRefs(ctx, r); err != nil {
		return core.Rule{}, err
	}
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return core.Rule{}, fmt.Errorf("update rule: %w", err)
	}
	s.reloadAfterChange(ctx)
	return r, nil
}

func (s *LedgerService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.reloadAfterChange(ctx)
	return nil
}

// RunRule applies one rule to every stored transaction. An inactive rule
// is a no-op.
func (s *LedgerService) RunRule(ctx context.Context, id string) (RunSummary, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return RunSummary{}, err
	}
	if !r.IsActive {
		return RunSummary{}, nil
	}
	rs := rules.NewRuleSet([]core.Rule{r})
	if rs.Len() == 0 {
		return RunSummary{}, fmt.Errorf("%w: rule %s cannot be compiled", core.ErrValidation, id)
	}
	return s.runRuleSet(ctx, rs, id)
}

// RunAllRules applies the active rule set, first match wins, to every
// stored transaction.
func (s *LedgerService) RunAllRules(ctx context.Context) (RunSummary, error) {
	return s.runRuleSet(ctx, s.rules.Set(), "")
}

func (s *LedgerService) runRuleSet(ctx context.Context, rs *rules.RuleSet, ruleID string) (RunSummary, error) {
	var sum RunSummary
	if rs.Len() == 0 {
		return sum, nil
	}
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return sum, fmt.Errorf("load transactions: %w", err)
	}

	var touched []string
	for _, t := range txns {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		if engineOwned(t) {
			continue
		}
		if _, ok := rs.First(t); !ok {
			continue
		}
		sum.Matched++

		changed, err := s.applyAndPersist(ctx, rs, t.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Rule run failed for transaction",
				log.NewFields().
					WithRule(ruleID).
					WithOperation(log.OpApplyRule).
					WithError(err).
					ToSlice()...,
			)
			continue
		}
		if changed {
			sum.Modified++
			touched = append(touched, t.Accounts()...)
		}
	}

	if sum.Modified > 0 {
		s.status.Purge()
		ev := amqp.NewLedgerEvent(amqp.EventRulesApplied, "", uniqueIDs(touched)...)
		ev.RuleID = ruleID
		s.publish(ctx, ev)
	}
	s.logger.InfoContext(ctx, "Rules applied",
		"rule_id", ruleID,
		"scanned", sum.Scanned,
		"matched", sum.Matched,
		"modified", sum.Modified)
	return sum, nil
}

// applyAndPersist re-reads the row under its account locks so a
// concurrent edit is never overwritten with stale fields.
func (s *LedgerService) applyAndPersist(ctx context.Context, rs *rules.RuleSet, id string) (bool, error) {
	cur, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return false, err
	}
	unlock := s.locks.Lock(cur.Accounts()...)
	defer unlock()

	fresh, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return false, err
	}
	out, m, err := s.rules.ApplySet(ctx, rs, fresh)
	if err != nil || !m.Changed {
		return false, err
	}
	out.UpdatedAt = s.now()
	if err := s.store.UpdateTransaction(ctx, out); err != nil {
		return false, err
	}
	return true, nil
}
