package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/store"
)

// MonthlyStatus returns incoming and outgoing funds of On Budget accounts
// for one calendar month. Results are cached until the next write.
func (s *LedgerService) MonthlyStatus(ctx context.Context, year, month int) (core.MonthlyStatus, error) {
	if month < 1 || month > 12 {
		return core.MonthlyStatus{}, fmt.Errorf("%w: month %d out of range", core.ErrValidation, month)
	}
	key := fmt.Sprintf("%04d-%02d", year, month)
	if st, ok := s.status.Get(key); ok {
		return st, nil
	}

	gen := s.status.Generation()
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
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
		txns, err = s.store.ListTransactions(gctx, store.TransactionFilter{From: from, Until: from.AddDate(0, 1, 0)})
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthlyStatus{}, fmt.Errorf("load monthly status %s: %w", key, err)
	}

	st, err := engine.MonthlyStatus(year, month, accounts, txns)
	if err != nil {
		return core.MonthlyStatus{}, err
	}
	s.status.SetIfGeneration(key, st, gen)
	return st, nil
}

// snapshot loads every row dated before until, plus the catalog.
func (s *LedgerService) snapshot(ctx context.Context, until time.Time) (engine.Snapshot, error) {
	var snap engine.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Accounts, err = s.store.ListAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Transactions, err = s.store.ListTransactions(gctx, store.TransactionFilter{Until: until})
		return err
	})
	g.Go(func() error {
		var err error
		snap.Categories, err = s.store.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Groups, err = s.store.ListCategoryGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return engine.Snapshot{}, fmt.Errorf("load report snapshot: %w", err)
	}
	return snap, nil
}

func (s *LedgerService) checkAccounts(snap engine.Snapshot, ids []string) error {
	known := make(map[string]bool, len(snap.Accounts))
	for _, a := range snap.Accounts {
		known[a.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return core.NotFound("account", id)
		}
	}
	return nil
}

func reportUntil(q engine.SeriesQuery) time.Time {
	return engine.DayStart(q.End).AddDate(0, 0, 1)
}

// BalanceSeries returns per-account balances at the end of each period.
func (s *LedgerService) BalanceSeries(ctx context.Context, q engine.SeriesQuery) (engine.BalanceSeries, error) {
	snap, err := s.snapshot(ctx, reportUntil(q))
	if err != nil {
		return engine.BalanceSeries{}, err
	}
	if err := s.checkAccounts(snap, q.AccountIDs); err != nil {
		return engine.BalanceSeries{}, err
	}
	return engine.ComputeBalanceSeries(q, snap)
}

// SpendingSeries returns outflows per category, or per category group.
func (s *LedgerService) SpendingSeries(ctx context.Context, q engine.SeriesQuery, byGroup bool) (engine.CategorySeries, error) {
	snap, err := s.snapshot(ctx, reportUntil(q))
	if err != nil {
		return engine.CategorySeries{}, err
	}
	if err := s.checkAccounts(snap, q.AccountIDs); err != nil {
		return engine.CategorySeries{}, err
	}
	return engine.ComputeSpendingSeries(q, snap, byGroup)
}

// FlowSeries returns inflow and outflow per category and period.
func (s *LedgerService) FlowSeries(ctx context.Context, q engine.SeriesQuery) (engine.FlowSeries, error) {
	snap, err := s.snapshot(ctx, reportUntil(q))
	if err != nil {
		return engine.FlowSeries{}, err
	}
	if err := s.checkAccounts(snap, q.AccountIDs); err != nil {
		return engine.FlowSeries{}, err
	}
	return engine.ComputeFlowSeries(q, snap)
}

// ReconcileAll replays every account, correcting diverged caches. At most
// parallel accounts are replayed at once.
func (s *LedgerService) ReconcileAll(ctx context.Context, parallel int) (ReconcileReport, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list accounts: %w", err)
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return s.ReconcileAccounts(ctx, ids, parallel)
}

// ReconcileAccounts replays the given accounts. Unknown ids are skipped.
func (s *LedgerService) ReconcileAccounts(ctx context.Context, ids []string, parallel int) (ReconcileReport, error) {
	if parallel <= 0 {
		parallel = 1
	}
	checks := make([]BalanceCheck, len(ids))
	failed := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, id := range ids {
		g.Go(func() error {
			check, err := s.RecomputeBalance(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WarnContext(gctx, "Reconcile failed for account", "account_id", id, "error", err)
				failed[i] = true
				return nil
			}
			checks[i] = check
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReconcileReport{}, err
	}

	var report ReconcileReport
	for i := range ids {
		if failed[i] {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, ids[i])
			continue
		}
		report.Checked++
		if !checks[i].Consistent {
			report.Corrected++
		}
	}
	return report, nil
}
