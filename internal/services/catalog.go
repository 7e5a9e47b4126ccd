package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/store"
)

// ResolveCategory finds a category by name, creating it when missing.
// It satisfies rules.CategoryResolver.
func (s *LedgerService) ResolveCategory(ctx context.Context, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyName
	}
	c, err := s.store.FindCategoryByName(ctx, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, err
	}
	c = core.Category{ID: uuid.NewString(), Name: name}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// created concurrently
			return s.store.FindCategoryByName(ctx, name)
		}
		return core.Category{}, err
	}
	return c, nil
}

func (s *LedgerService) CreateCategory(ctx context.Context, name, groupID string) (core.Category, error) {
	c := core.Category{ID: uuid.NewString(), Name: strings.TrimSpace(name), GroupID: strings.TrimSpace(groupID)}
	if c.Name == "" {
		return core.Category{}, core.ErrEmptyName
	}
	if c.GroupID != "" {
		if _, err := s.store.GetCategoryGroup(ctx, c.GroupID); err != nil {
			return core.Category{}, err
		}
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *LedgerService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *LedgerService) CreateCategoryGroup(ctx context.Context, name string) (core.CategoryGroup, error) {
	g := core.CategoryGroup{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if g.Name == "" {
		return core.CategoryGroup{}, core.ErrEmptyName
	}
	if err := s.store.CreateCategoryGroup(ctx, g); err != nil {
		return core.CategoryGroup{}, fmt.Errorf("create category group: %w", err)
	}
	return g, nil
}

func (s *LedgerService) ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	return s.store.ListCategoryGroups(ctx)
}

// BudgetInput is the writable shape of a budget.
type BudgetInput struct {
	Name        string
	Description string
	Amount      core.Money
	StartDate   time.Time
	EndDate     *time.Time
	GroupID     string
}

func (s *LedgerService) checkBudgetGroup(ctx context.Context, b core.Budget) error {
	if b.GroupID == "" {
		return nil
	}
	if _, err := s.store.GetGroup(ctx, core.BudgetGroupKind, b.GroupID); err != nil {
		return refError("budget group", b.GroupID, err)
	}
	return nil
}

func (s *LedgerService) CreateBudget(ctx context.Context, in BudgetInput) (core.BudgetStatus, error) {
	now := s.now()
	b := core.Budget{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate,
		GroupID:     strings.TrimSpace(in.GroupID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.Validate(); err != nil {
		return core.BudgetStatus{}, err
	}
	if err := s.checkBudgetGroup(ctx, b); err != nil {
		return core.BudgetStatus{}, err
	}
	if err := s.store.CreateBudget(ctx, b); err != nil {
		return core.BudgetStatus{}, fmt.Errorf("create budget: %w", err)
	}
	return core.BudgetStatus{Budget: b, Remaining: b.Amount}, nil
}

// GetBudget returns the budget with its spent and remaining amounts.
func (s *LedgerService) GetBudget(ctx context.Context, id string) (core.BudgetStatus, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return s.budgetStatus(ctx, b)
}

func (s *LedgerService) budgetStatus(ctx context.Context, b core.Budget) (core.BudgetStatus, error) {
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{BudgetID: b.ID})
	if err != nil {
		return core.BudgetStatus{}, fmt.Errorf("load budget activity %s: %w", b.ID, err)
	}
	return engine.BudgetActivity(b, txns), nil
}

func (s *LedgerService) ListBudgets(ctx context.Context) ([]core.BudgetStatus, error) {
	budgets, err := s.store.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	return s.budgetStatuses(ctx, budgets)
}

func (s *LedgerService) budgetStatuses(ctx context.Context, budgets []core.Budget) ([]core.BudgetStatus, error) {
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st, err := s.budgetStatus(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *LedgerService) UpdateBudget(ctx context.Context, id string, in BudgetInput) (core.BudgetStatus, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	b.Name = strings.TrimSpace(in.Name)
	b.Description = strings.TrimSpace(in.Description)
	b.Amount = in.Amount
	b.StartDate = in.StartDate.UTC()
	b.EndDate = in.EndDate
	b.GroupID = strings.TrimSpace(in.GroupID)
	b.UpdatedAt = s.now()
	if err := b.Validate(); err != nil {
		return core.BudgetStatus{}, err
	}
	if err := s.checkBudgetGroup(ctx, b); err != nil {
		return core.BudgetStatus{}, err
	}
	if err := s.store.UpdateBudget(ctx, b); err != nil {
		return core.BudgetStatus{}, fmt.Errorf("update budget: %w", err)
	}
	return s.budgetStatus(ctx, b)
}

func (s *LedgerService) DeleteBudget(ctx context.Context, id string) error {
	if err := s.store.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}
