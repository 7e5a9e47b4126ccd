package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/log"
	"ledger/internal/store"
)

// AccountInput describes a new account. A non-zero OpeningBalance writes
// one Initial Balance row with the account, dated OpeningDate (default now).
type AccountInput struct {
	Name           string
	Type           core.AccountType
	Currency       string
	IsDefault      bool
	OpeningBalance core.Money
	OpeningDate    time.Time
}

// AccountPatch changes descriptive account fields. Nil fields are kept.
type AccountPatch struct {
	Name      *string
	Type      *core.AccountType
	Currency  *string
	IsDefault *bool
}

func (s *LedgerService) CreateAccount(ctx context.Context, in AccountInput) (core.Account, error) {
	now := s.now()
	a := core.Account{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		IsDefault: in.IsDefault,
		Balance:   in.OpeningBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.Currency == "" {
		a.Currency = s.config.DefaultCurrency
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	var opening *core.Transaction
	if !in.OpeningBalance.IsZero() {
		date := in.OpeningDate
		if date.IsZero() {
			date = now
		}
		opening = &core.Transaction{
			ID:              uuid.NewString(),
			SourceAccountID: a.ID,
			Description:     core.CategoryInitialBalance,
			Amount:          in.OpeningBalance.Neg(),
			Category:        core.CategoryInitialBalance,
			Date:            date.UTC(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	if err := s.store.CreateAccount(ctx, a, opening); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	if a.IsDefault {
		s.clearOtherDefaults(ctx, a.ID)
	}
	s.status.Purge()

	s.logger.InfoContext(ctx, "Account created",
		log.NewFields().WithAccount(a.ID).WithOperation(log.OpCreate).ToSlice()...)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventAccountCreated, "", a.ID))
	return a, nil
}

// createExternal registers a counterparty account with no opening row.
func (s *LedgerService) createExternal(ctx context.Context, name string) (core.Account, error) {
	a, err := s.CreateAccount(ctx, AccountInput{Name: name, Type: core.AccountType{Kind: core.External}})
	if errors.Is(err, core.ErrConflict) {
		return s.store.FindAccountByName(ctx, name)
	}
	return a, err
}

func (s *LedgerService) clearOtherDefaults(ctx context.Context, keepID string) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to list accounts for default flag", "error", err)
		return
	}
	for _, other := range accounts {
		if other.ID == keepID || !other.IsDefault {
			continue
		}
		other.IsDefault = false
		other.UpdatedAt = s.now()
		if err := s.store.UpdateAccount(ctx, other); err != nil {
			s.logger.WarnContext(ctx, "Failed to clear default flag", "account_id", other.ID, "error", err)
		}
	}
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *LedgerService) UpdateAccount(ctx context.Context, id string, p AccountPatch) (core.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Currency != nil {
		a.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.IsDefault != nil {
		a.IsDefault = *p.IsDefault
	}
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	if a.IsDefault {
		s.clearOtherDefaults(ctx, a.ID)
	}
	// account type drives monthly status
	s.status.Purge()
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventAccountUpdated, "", a.ID))
	return s.store.GetAccount(ctx, id)
}

// DeleteAccount removes the account with the rows it sources, detaches it
// from rows where it is the destination, and replays the counterparties.
func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	affected, err := s.store.DeleteAccount(ctx, id)
	unlock()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	for _, other := range affected {
		release := s.locks.Lock(other)
		s.afterWrite(ctx, other)
		release()
	}
	s.status.Purge()
	s.logger.InfoContext(ctx, "Account deleted",
		log.NewFields().WithAccount(id).WithOperation(log.OpDelete).ToSlice()...)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventAccountDeleted, "", append([]string{id}, affected...)...))
	return nil
}

// GetBalance returns the replayed current balance. A diverging cached
// balance is logged as an inconsistency and corrected.
func (s *LedgerService) GetBalance(ctx context.Context, id string) (core.Money, error) {
	check, err := s.RecomputeBalance(ctx, id)
	if err != nil {
		return core.Money{}, err
	}
	return check.Replayed, nil
}

// RecomputeBalance forces a full replay of one account.
func (s *LedgerService) RecomputeBalance(ctx context.Context, id string) (BalanceCheck, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	check, err := s.recompute(ctx, id)
	if err != nil {
		return check, err
	}
	if !check.Consistent {
		s.status.Purge()
		s.logger.WarnContext(ctx, "Cached balance diverged from replay; corrected",
			log.NewFields().
				WithAccount(id).
				WithOperation(log.OpRecompute).
				WithErrorType(log.ErrorTypeInconsistency).
				WithError(core.ErrInconsistency).
				ToSlice()...,
		)
	}
	return check, nil
}

// BalanceAt replays the account up to and including instant.
func (s *LedgerService) BalanceAt(ctx context.Context, id string, instant time.Time) (core.Money, error) {
	if _, err := s.store.GetAccount(ctx, id); err != nil {
		return core.Money{}, err
	}
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{AccountID: id})
	if err != nil {
		return core.Money{}, fmt.Errorf("load transactions for %s: %w", id, err)
	}
	return engine.BalanceAt(id, instant, txns), nil
}

// AdjustBalance is the administrative override: it writes a Balance
// Adjustment row so that the replayed balance equals target. It returns
// nil when the balance already matches.
func (s *LedgerService) AdjustBalance(ctx context.Context, id string, target core.Money, date time.Time) (*core.Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{AccountID: id})
	if err != nil {
		return nil, fmt.Errorf("load transactions for %s: %w", id, err)
	}
	diff := target.Sub(engine.Replay(id, txns))
	if diff.IsZero() {
		return nil, nil
	}

	now := s.now()
	if date.IsZero() {
		date = now
	}
	t := core.Transaction{
		ID:              uuid.NewString(),
		SourceAccountID: id,
		Description:     core.CategoryBalanceAdjustment,
		Amount:          diff.Neg(),
		Category:        core.CategoryBalanceAdjustment,
		Date:            date.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create adjustment: %w", err)
	}
	s.afterWrite(ctx, id)
	s.logger.InfoContext(ctx, "Balance adjusted",
		log.NewFields().
			WithTransaction(t.ID, id, t.Amount.Cents, t.Category).
			WithOperation(log.OpAdjust).
			ToSlice()...)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventBalanceAdjusted, t.ID, id))
	return &t, nil
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
	Failed    int `json:"failed"`

	FailedIDs []string `json:"failed_ids,omitempty"`
}
