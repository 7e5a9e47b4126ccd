package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// GroupInput is the writable shape of a rule or budget group.
type GroupInput struct {
	Name        string
	Description string
}

func (s *LedgerService) CreateGroup(ctx context.Context, kind core.GroupKind, in GroupInput) (core.Group, error) {
	now := s.now()
	g := core.Group{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateGroup(ctx, kind, g); err != nil {
		return core.Group{}, fmt.Errorf("create %s group: %w", kind, err)
	}
	return g, nil
}

func (s *LedgerService) GetGroup(ctx context.Context, kind core.GroupKind, id string) (core.Group, error) {
	return s.store.GetGroup(ctx, kind, id)
}

func (s *LedgerService) ListGroups(ctx context.Context, kind core.GroupKind) ([]core.Group, error) {
	return s.store.ListGroups(ctx, kind)
}

func (s *LedgerService) UpdateGroup(ctx context.Context, kind core.GroupKind, id string, in GroupInput) (core.Group, error) {
	g, err := s.store.GetGroup(ctx, kind, id)
	if err != nil {
		return core.Group{}, err
	}
	g.Name = strings.TrimSpace(in.Name)
	g.Description = strings.TrimSpace(in.Description)
	g.UpdatedAt = s.now()
	if err := s.store.UpdateGroup(ctx, kind, g); err != nil {
		return core.Group{}, fmt.Errorf("update %s group: %w", kind, err)
	}
	return g, nil
}

// DeleteGroup removes the group; its members stay, ungrouped.
func (s *LedgerService) DeleteGroup(ctx context.Context, kind core.GroupKind, id string) error {
	if err := s.store.DeleteGroup(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s group: %w", kind, err)
	}
	if kind == core.RuleGroupKind {
		s.reloadAfterChange(ctx)
	}
	return nil
}

// GroupRules lists the rules of a rule group in evaluation order.
func (s *LedgerService) GroupRules(ctx context.Context, id string) ([]core.Rule, error) {
	if _, err := s.store.GetGroup(ctx, core.RuleGroupKind, id); err != nil {
		return nil, err
	}
	all, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	out := []core.Rule{}
	for _, r := range all {
		if r.GroupID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

// GroupBudgets lists the budgets of a budget group with their activity.
func (s *LedgerService) GroupBudgets(ctx context.Context, id string) ([]core.BudgetStatus, error) {
	if _, err := s.store.GetGroup(ctx, core.BudgetGroupKind, id); err != nil {
		return nil, err
	}
	all, err := s.store.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	var members []core.Budget
	for _, b := range all {
		if b.GroupID == id {
			members = append(members, b)
		}
	}
	return s.budgetStatuses(ctx, members)
}
