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
	"ledger/internal/log"
	"ledger/internal/store"
)

const maxUpdateAttempts = 3

// TransactionInput describes a new transaction. A DestinationName without
// a DestinationAccountID binds to the account of that name, creating an
// External account when none exists.
type TransactionInput struct {
	SourceAccountID      string
	DestinationAccountID string
	DestinationName      string
	Description          string
	Amount               core.Money
	Category             string
	BudgetID             string
	Date                 time.Time
}

// TransactionPatch changes a stored transaction. Nil fields are kept; an
// empty string clears an optional field.
type TransactionPatch struct {
	SourceAccountID      *string
	DestinationAccountID *string
	DestinationName      *string
	Description          *string
	Amount               *core.Money
	Category             *string
	BudgetID             *string
	Date                 *time.Time
}

func (p TransactionPatch) apply(t core.Transaction) core.Transaction {
	if p.SourceAccountID != nil {
		t.SourceAccountID = strings.TrimSpace(*p.SourceAccountID)
	}
	if p.DestinationAccountID != nil {
		t.DestinationAccountID = strings.TrimSpace(*p.DestinationAccountID)
	}
	if p.DestinationName != nil {
		t.DestinationName = strings.TrimSpace(*p.DestinationName)
		if p.DestinationAccountID == nil {
			// a new name rebinds the destination
			t.DestinationAccountID = ""
		}
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
		t.CategoryID = ""
	}
	if p.BudgetID != nil {
		t.BudgetID = strings.TrimSpace(*p.BudgetID)
	}
	if p.Date != nil {
		t.Date = p.Date.UTC()
	}
	return t
}

// Page is one window of an ordered listing.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset *int `json:"next_offset,omitempty"`
}

func (s *LedgerService) CreateTransaction(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	now := s.now()
	t := core.Transaction{
		ID:                   uuid.NewString(),
		SourceAccountID:      strings.TrimSpace(in.SourceAccountID),
		DestinationAccountID: strings.TrimSpace(in.DestinationAccountID),
		DestinationName:      strings.TrimSpace(in.DestinationName),
		Description:          strings.TrimSpace(in.Description),
		Amount:               in.Amount,
		Category:             strings.TrimSpace(in.Category),
		BudgetID:             strings.TrimSpace(in.BudgetID),
		Date:                 in.Date.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if in.Date.IsZero() {
		t.Date = now
	}

	if err := s.resolve(ctx, &t, true); err != nil {
		return core.Transaction{}, err
	}

	unlock := s.locks.Lock(t.Accounts()...)
	defer unlock()

	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.afterWrite(ctx, t.Accounts()...)
	t = s.applyRulesInline(ctx, t)

	s.events.LogTransactionWritten(ctx, log.OpCreate, t)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventTransactionCreated, t.ID, t.Accounts()...))
	return t, nil
}

// resolve validates t and binds names to ids. Validation runs before any
// side effect such as creating an External destination or a category.
// bindName controls whether a bare destination name is bound to an account.
func (s *LedgerService) resolve(ctx context.Context, t *core.Transaction, bindName bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetAccount(ctx, t.SourceAccountID); err != nil {
		return err
	}
	if t.DestinationAccountID != "" {
		if _, err := s.store.GetAccount(ctx, t.DestinationAccountID); err != nil {
			return err
		}
	}
	if t.BudgetID != "" {
		if _, err := s.store.GetBudget(ctx, t.BudgetID); err != nil {
			return err
		}
	}
	if t.CategoryID != "" && t.Category == "" {
		c, err := s.store.GetCategory(ctx, t.CategoryID)
		if err != nil {
			return err
		}
		t.Category = c.Name
	}

	if bindName && t.DestinationAccountID == "" && t.DestinationName != "" {
		dst, err := s.store.FindAccountByName(ctx, t.DestinationName)
		switch {
		case errors.Is(err, core.ErrNotFound):
			if dst, err = s.createExternal(ctx, t.DestinationName); err != nil {
				return fmt.Errorf("create destination %q: %w", t.DestinationName, err)
			}
		case err != nil:
			return err
		}
		t.DestinationAccountID = dst.ID
	}
	if t.DestinationAccountID == t.SourceAccountID {
		return core.ErrSameAccount
	}

	if t.Category != "" && t.CategoryID == "" && !engineOwned(*t) {
		c, err := s.ResolveCategory(ctx, t.Category)
		if err != nil {
			return fmt.Errorf("resolve category %q: %w", t.Category, err)
		}
		t.Category, t.CategoryID = c.Name, c.ID
	}
	return nil
}

// applyRulesInline runs the current rule set over a freshly written row
// and writes back a changed categorization. Errors are logged and the
// stored row is returned unchanged. Callers hold the row's account locks.
func (s *LedgerService) applyRulesInline(ctx context.Context, t core.Transaction) core.Transaction {
	if engineOwned(t) {
		return t
	}
	out, m, err := s.rules.Apply(ctx, t)
	if err != nil {
		s.logger.WarnContext(ctx, "Rule application failed",
			log.NewFields().
				WithRule(m.RuleID).
				WithOperation(log.OpApplyRule).
				WithError(err).
				ToSlice()...)
		return t
	}
	if !m.Changed {
		return t
	}
	out.UpdatedAt = s.now()
	if err := s.store.UpdateTransaction(ctx, out); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist rule result",
			log.NewFields().
				WithRule(m.RuleID).
				WithOperation(log.OpApplyRule).
				WithErrorType(log.ErrorTypeDatabase).
				WithError(err).
				ToSlice()...)
		return t
	}
	s.status.Purge()
	return out
}

// engineOwned rows carry categories the ledger itself assigns.
func engineOwned(t core.Transaction) bool {
	return t.IsInitialBalance() || strings.EqualFold(strings.TrimSpace(t.Category), core.CategoryBalanceAdjustment)
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListTransactions returns one page, newest transaction date first.
func (s *LedgerService) ListTransactions(ctx context.Context, f store.TransactionFilter) (Page[core.Transaction], error) {
	if f.Limit < 0 || f.Offset < 0 {
		return Page[core.Transaction]{}, fmt.Errorf("%w: limit and offset must not be negative", core.ErrValidation)
	}
	// one extra row tells whether another page exists
	probe := f
	if f.Limit > 0 {
		probe.Limit = f.Limit + 1
	}
	items, err := s.store.ListTransactions(ctx, probe)
	if err != nil {
		return Page[core.Transaction]{}, err
	}
	page := Page[core.Transaction]{Items: items, Limit: f.Limit, Offset: f.Offset}
	if f.Limit > 0 && len(items) > f.Limit {
		page.Items = items[:f.Limit]
		next := f.Offset + f.Limit
		page.NextOffset = &next
	}
	return page, nil
}

// UpdateTransaction applies p, then replays every account touched before
// or after the change.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, p TransactionPatch) (core.Transaction, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			return core.Transaction{}, err
		}
		next := p.apply(cur)
		if err := s.resolve(ctx, &next, p.DestinationName != nil); err != nil {
			return core.Transaction{}, err
		}

		unlock := s.locks.Lock(append(cur.Accounts(), next.Accounts()...)...)
		fresh, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			unlock()
			return core.Transaction{}, err
		}
		if !fresh.UpdatedAt.Equal(cur.UpdatedAt) {
			unlock()
			continue
		}

		next.UpdatedAt = s.now()
		if err := s.store.UpdateTransaction(ctx, next); err != nil {
			unlock()
			return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
		}
		s.afterWrite(ctx, append(cur.Accounts(), next.Accounts()...)...)
		next = s.applyRulesInline(ctx, next)
		unlock()

		s.events.LogTransactionWritten(ctx, log.OpUpdate, next)
		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventTransactionUpdated, next.ID, uniqueIDs(append(cur.Accounts(), next.Accounts()...))...))
		return next, nil
	}
	return core.Transaction{}, fmt.Errorf("%w: transaction %s changed concurrently", core.ErrConflict, id)
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		unlock := s.locks.Lock(cur.Accounts()...)
		fresh, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			unlock()
			return err
		}
		if !fresh.UpdatedAt.Equal(cur.UpdatedAt) {
			unlock()
			continue
		}
		if err := s.store.DeleteTransaction(ctx, id); err != nil {
			unlock()
			return fmt.Errorf("delete transaction: %w", err)
		}
		s.afterWrite(ctx, cur.Accounts()...)
		unlock()

		s.events.LogTransactionWritten(ctx, log.OpDelete, cur)
		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventTransactionDeleted, id, cur.Accounts()...))
		return nil
	}
	return fmt.Errorf("%w: transaction %s changed concurrently", core.ErrConflict, id)
}
