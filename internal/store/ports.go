// Package store declares the persistence ports of the ledger. The
// transaction log behind TransactionStore is the only source of truth;
// the cached account balance is a projection maintained by the service.
package store

import (
	"context"
	"time"

	"ledger/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	AccountID  string // source or destination
	Category   string // case-insensitive exact match
	From       time.Time
	Until      time.Time // exclusive
	BudgetID   string
	Unbudgeted bool
	Limit      int // 0 = no limit
	Offset     int
}

// Matches reports whether t passes every field of the filter except
// paging. Adapters that filter in memory share it.
func (f TransactionFilter) Matches(t core.Transaction) bool {
	if f.AccountID != "" && !t.Touches(f.AccountID) {
		return false
	}
	if f.Category != "" && !equalFold(t.Category, f.Category) {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.Until.IsZero() && !t.Date.Before(f.Until) {
		return false
	}
	if f.BudgetID != "" && t.BudgetID != f.BudgetID {
		return false
	}
	if f.Unbudgeted && t.BudgetID != "" {
		return false
	}
	return true
}

// Ports for outbound adapters.
type (
	AccountStore interface {
		// CreateAccount stores a and, when opening is non-nil, its
		// Initial Balance row in the same atomic write.
		CreateAccount(ctx context.Context, a core.Account, opening *core.Transaction) error
		GetAccount(ctx context.Context, id string) (core.Account, error)
		FindAccountByName(ctx context.Context, name string) (core.Account, error)
		ListAccounts(ctx context.Context) ([]core.Account, error)
		// UpdateAccount changes descriptive fields; the balance is untouched.
		UpdateAccount(ctx context.Context, a core.Account) error
		SetCachedBalance(ctx context.Context, id string, balance core.Money) error
		// DeleteAccount removes the account and every row it is the source
		// of, and detaches it from rows where it is the destination. It
		// returns the other accounts whose balances changed.
		DeleteAccount(ctx context.Context, id string) ([]string, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions returns matching rows ordered by transaction
		// date, newest first.
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) error
		GetCategory(ctx context.Context, id string) (core.Category, error)
		FindCategoryByName(ctx context.Context, name string) (core.Category, error)
		ListCategories(ctx context.Context) ([]core.Category, error)
		CreateCategoryGroup(ctx context.Context, g core.CategoryGroup) error
		GetCategoryGroup(ctx context.Context, id string) (core.CategoryGroup, error)
		ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		// DeleteBudget also clears the budget from tagged transactions.
		DeleteBudget(ctx context.Context, id string) error
	}

	RuleStore interface {
		CreateRule(ctx context.Context, r core.Rule) error
		GetRule(ctx context.Context, id string) (core.Rule, error)
		ListRules(ctx context.Context) ([]core.Rule, error)
		UpdateRule(ctx context.Context, r core.Rule) error
		DeleteRule(ctx context.Context, id string) error
	}

	// GroupStore keeps rule groups and budget groups apart by kind.
	GroupStore interface {
		CreateGroup(ctx context.Context, kind core.GroupKind, g core.Group) error
		GetGroup(ctx context.Context, kind core.GroupKind, id string) (core.Group, error)
		ListGroups(ctx context.Context, kind core.GroupKind) ([]core.Group, error)
		UpdateGroup(ctx context.Context, kind core.GroupKind, g core.Group) error
		// DeleteGroup also clears the group from its members.
		DeleteGroup(ctx context.Context, kind core.GroupKind, id string) error
	}

	SettingStore interface {
		// GetSetting returns core.ErrNotFound for keys never written.
		GetSetting(ctx context.Context, key string) (string, error)
		PutSetting(ctx context.Context, key, value string) error
	}

	// Store is the full persistence surface a backend provides.
	Store interface {
		AccountStore
		TransactionStore
		CategoryStore
		BudgetStore
		RuleStore
		GroupStore
		SettingStore
		Ping(ctx context.Context) error
		Close() error
	}
)
