package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/store"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapErr translates driver errors into ledger error kinds.
func mapErr(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(entity, id)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s %q already exists", core.ErrConflict, entity, id)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s %q references a missing row", core.ErrNotFound, entity, id)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %s %q: %v", core.ErrValidation, entity, id, err)
		}
	}
	return fmt.Errorf("%s %q: %w", entity, id, err)
}

func affectedOne(n int64, err error, entity, id string) error {
	if err != nil {
		return mapErr(err, entity, id)
	}
	if n == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

// Accounts

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account, opening *core.Transaction) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.InsertAccount(ctx, a); err != nil {
			return mapErr(err, "account", a.Name)
		}
		if opening != nil {
			if err := q.InsertTransaction(ctx, *opening); err != nil {
				return mapErr(err, "transaction", opening.ID)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := r.queries.GetAccount(ctx, id)
	return a, mapErr(err, "account", id)
}

func (r *SQLiteRepository) FindAccountByName(ctx context.Context, name string) (core.Account, error) {
	a, err := r.queries.GetAccountByName(ctx, name)
	return a, mapErr(err, "account", name)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	out, err := r.queries.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateAccount(ctx, a)
	return affectedOne(n, err, "account", a.ID)
}

func (r *SQLiteRepository) SetCachedBalance(ctx context.Context, id string, balance core.Money) error {
	n, err := r.queries.SetAccountBalance(ctx, id, balance.Cents, time.Now())
	return affectedOne(n, err, "account", id)
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) ([]string, error) {
	var affected []string
	err := r.withTx(ctx, func(q *Queries) error {
		a, err := q.GetAccount(ctx, id)
		if err != nil {
			return mapErr(err, "account", id)
		}
		if affected, err = q.CounterpartiesOf(ctx, id); err != nil {
			return fmt.Errorf("counterparties of %s: %w", id, err)
		}
		if err := q.DetachDestination(ctx, id, a.Name, time.Now()); err != nil {
			return fmt.Errorf("detach destination %s: %w", id, err)
		}
		if err := q.DeleteTransactionsBySource(ctx, id); err != nil {
			return fmt.Errorf("delete sourced rows %s: %w", id, err)
		}
		n, err := q.DeleteAccount(ctx, id)
		return affectedOne(n, err, "account", id)
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return mapErr(r.queries.InsertTransaction(ctx, t), "transaction", t.ID)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	return t, mapErr(err, "transaction", id)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateTransaction(ctx, t)
	return affectedOne(n, err, "transaction", t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	return affectedOne(n, err, "transaction", id)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	out, err := r.queries.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// Categories

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if c.Name == "" {
		return core.ErrEmptyName
	}
	return mapErr(r.queries.InsertCategory(ctx, c), "category", c.Name)
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, id)
	return c, mapErr(err, "category", id)
}

func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, name string) (core.Category, error) {
	c, err := r.queries.GetCategoryByName(ctx, name)
	return c, mapErr(err, "category", name)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	out, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateCategoryGroup(ctx context.Context, g core.CategoryGroup) error {
	if g.Name == "" {
		return core.ErrEmptyName
	}
	return mapErr(r.queries.InsertCategoryGroup(ctx, g), "category group", g.Name)
}

func (r *SQLiteRepository) GetCategoryGroup(ctx context.Context, id string) (core.CategoryGroup, error) {
	g, err := r.queries.GetCategoryGroup(ctx, id)
	return g, mapErr(err, "category group", id)
}

func (r *SQLiteRepository) ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	out, err := r.queries.ListCategoryGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list category groups: %w", err)
	}
	return out, nil
}

// Budgets

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return mapErr(r.queries.InsertBudget(ctx, b), "budget", b.ID)
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := r.queries.GetBudget(ctx, id)
	return b, mapErr(err, "budget", id)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	out, err := r.queries.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateBudget(ctx, b)
	return affectedOne(n, err, "budget", b.ID)
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.ClearBudget(ctx, id); err != nil {
			return fmt.Errorf("clear budget %s: %w", id, err)
		}
		n, err := q.DeleteBudget(ctx, id)
		return affectedOne(n, err, "budget", id)
	})
}

// Rules

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return mapErr(r.queries.InsertRule(ctx, rule), "rule", rule.ID)
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.Rule, error) {
	rule, err := r.queries.GetRule(ctx, id)
	return rule, mapErr(err, "rule", id)
}

func (r *SQLiteRepository) ListRules(ctx context.Context) ([]core.Rule, error) {
	out, err := r.queries.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateRule(ctx, rule)
	return affectedOne(n, err, "rule", rule.ID)
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	n, err := r.queries.DeleteRule(ctx, id)
	return affectedOne(n, err, "rule", id)
}

// Groups

func (r *SQLiteRepository) CreateGroup(ctx context.Context, kind core.GroupKind, g core.Group) error {
	table, err := groupTable(kind)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	return mapErr(r.queries.InsertGroup(ctx, table, g), string(kind)+" group", g.Name)
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, kind core.GroupKind, id string) (core.Group, error) {
	table, err := groupTable(kind)
	if err != nil {
		return core.Group{}, err
	}
	g, err := r.queries.GetGroup(ctx, table, id)
	return g, mapErr(err, string(kind)+" group", id)
}

func (r *SQLiteRepository) ListGroups(ctx context.Context, kind core.GroupKind) ([]core.Group, error) {
	table, err := groupTable(kind)
	if err != nil {
		return nil, err
	}
	out, err := r.queries.ListGroups(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list %s groups: %w", kind, err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateGroup(ctx context.Context, kind core.GroupKind, g core.Group) error {
	table, err := groupTable(kind)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateGroup(ctx, table, g)
	return affectedOne(n, err, string(kind)+" group", g.ID)
}

// DeleteGroup relies on ON DELETE SET NULL to ungroup the members.
func (r *SQLiteRepository) DeleteGroup(ctx context.Context, kind core.GroupKind, id string) error {
	table, err := groupTable(kind)
	if err != nil {
		return err
	}
	n, err := r.queries.DeleteGroup(ctx, table, id)
	return affectedOne(n, err, string(kind)+" group", id)
}

// Settings

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := r.queries.GetSetting(ctx, key)
	return v, mapErr(err, "setting", key)
}

func (r *SQLiteRepository) PutSetting(ctx context.Context, key, value string) error {
	if err := r.queries.PutSetting(ctx, key, value, time.Now()); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
