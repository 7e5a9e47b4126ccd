package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/store"
)

// BudgetMonthStatus is MonthlyStatus plus the month's budgeted amount,
// what is left to budget and the forecasted income.
func (s *LedgerService) BudgetMonthStatus(ctx context.Context, year, month int) (core.BudgetMonthStatus, error) {
	var (
		st       core.MonthlyStatus
		budgets  []core.Budget
		forecast core.Money
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st, err = s.MonthlyStatus(gctx, year, month)
		return err
	})
	g.Go(func() error {
		var err error
		budgets, err = s.store.ListBudgets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = s.ForecastedMonthlyIncome(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.BudgetMonthStatus{}, err
	}
	return engine.BudgetMonthStatus(st, budgets, forecast), nil
}

// UnbudgetedSpent sums On Budget outflows that carry no budget. A zero
// month means all time.
func (s *LedgerService) UnbudgetedSpent(ctx context.Context, year, month int) (core.Money, error) {
	f := store.TransactionFilter{Unbudgeted: true}
	if month != 0 {
		if month < 1 || month > 12 {
			return core.Money{}, fmt.Errorf("%w: month %d out of range", core.ErrValidation, month)
		}
		f.From = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		f.Until = f.From.AddDate(0, 1, 0)
	}
	var (
		accounts []core.Account
		txns     []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = s.store.ListAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		txns, err = s.store.ListTransactions(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Money{}, fmt.Errorf("load unbudgeted spending: %w", err)
	}
	return engine.UnbudgetedSpent(accounts, txns, f.From, f.Until), nil
}

// ActiveBudgets returns the budgets running today with their activity.
func (s *LedgerService) ActiveBudgets(ctx context.Context) ([]core.BudgetStatus, error) {
	budgets, err := s.store.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	return s.budgetStatuses(ctx, engine.ActiveBudgets(budgets, s.now()))
}

// ForecastedMonthlyIncome is zero until it has been set.
func (s *LedgerService) ForecastedMonthlyIncome(ctx context.Context) (core.Money, error) {
	v, err := s.store.GetSetting(ctx, core.SettingForecastedMonthlyIncome)
	if errors.Is(err, core.ErrNotFound) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("load forecasted income: %w", err)
	}
	cents, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return core.Money{}, fmt.Errorf("forecasted income %q: %w", v, err)
	}
	return core.Cents(cents), nil
}

func (s *LedgerService) SetForecastedMonthlyIncome(ctx context.Context, m core.Money) (core.Money, error) {
	if m.Cents < 0 {
		return core.Money{}, fmt.Errorf("%w: forecasted income cannot be negative", core.ErrValidation)
	}
	if err := s.store.PutSetting(ctx, core.SettingForecastedMonthlyIncome, strconv.FormatInt(m.Cents, 10)); err != nil {
		return core.Money{}, fmt.Errorf("save forecasted income: %w", err)
	}
	return m, nil
}
