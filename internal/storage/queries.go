package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/store"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as Unix microseconds, which covers years 1 to 9999.
func toUnix(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromUnix(n int64) time.Time { return time.UnixMicro(n).UTC() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const accountColumns = `id, name, account_type, currency, balance_cents, is_default, created_at, updated_at`

func scanAccount(r rowScanner) (core.Account, error) {
	var (
		a                core.Account
		typ              string
		balance          int64
		created, updated int64
	)
	if err := r.Scan(&a.ID, &a.Name, &typ, &a.Currency, &balance, &a.IsDefault, &created, &updated); err != nil {
		return core.Account{}, err
	}
	t, err := core.ParseAccountType(typ)
	if err != nil {
		return core.Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Type = t
	a.Balance = core.Cents(balance)
	a.CreatedAt, a.UpdatedAt = fromUnix(created), fromUnix(updated)
	return a, nil
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Type.String(), a.Currency, a.Balance.Cents, a.IsDefault, toUnix(a.CreatedAt), toUnix(a.UpdatedAt))
	return err
}

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (q *Queries) GetAccountByName(ctx context.Context, name string) (core.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name)))
}

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateAccount(ctx context.Context, a core.Account) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, account_type = ?, currency = ?, is_default = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Type.String(), a.Currency, a.IsDefault, toUnix(a.UpdatedAt), a.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) SetAccountBalance(ctx context.Context, id string, cents int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ?, updated_at = ? WHERE id = ?`, cents, toUnix(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAccount(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const transactionColumns = `id, source_account_id, destination_account_id, destination_name, description,
	amount_cents, category, category_id, budget_id, transaction_date, created_at, updated_at`

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		t                          core.Transaction
		dst, catID, budgetID       sql.NullString
		amount, date, created, upd int64
	)
	if err := r.Scan(&t.ID, &t.SourceAccountID, &dst, &t.DestinationName, &t.Description,
		&amount, &t.Category, &catID, &budgetID, &date, &created, &upd); err != nil {
		return core.Transaction{}, err
	}
	t.DestinationAccountID = dst.String
	t.CategoryID = catID.String
	t.BudgetID = budgetID.String
	t.Amount = core.Cents(amount)
	t.Date, t.CreatedAt, t.UpdatedAt = fromUnix(date), fromUnix(created), fromUnix(upd)
	return t, nil
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SourceAccountID, nullString(t.DestinationAccountID), t.DestinationName, t.Description,
		t.Amount.Cents, t.Category, nullString(t.CategoryID), nullString(t.BudgetID),
		toUnix(t.Date), toUnix(t.CreatedAt), toUnix(t.UpdatedAt))
	return err
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		source_account_id = ?, destination_account_id = ?, destination_name = ?, description = ?,
		amount_cents = ?, category = ?, category_id = ?, budget_id = ?, transaction_date = ?, updated_at = ?
		WHERE id = ?`,
		t.SourceAccountID, nullString(t.DestinationAccountID), t.DestinationName, t.Description,
		t.Amount.Cents, t.Category, nullString(t.CategoryID), nullString(t.BudgetID),
		toUnix(t.Date), toUnix(t.UpdatedAt), t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, `(source_account_id = ? OR destination_account_id = ?)`)
		args = append(args, f.AccountID, f.AccountID)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		where = append(where, `TRIM(category) = ? COLLATE NOCASE`)
		args = append(args, c)
	}
	if !f.From.IsZero() {
		where = append(where, `transaction_date >= ?`)
		args = append(args, toUnix(f.From))
	}
	if !f.Until.IsZero() {
		where = append(where, `transaction_date < ?`)
		args = append(args, toUnix(f.Until))
	}
	if f.BudgetID != "" {
		where = append(where, `budget_id = ?`)
		args = append(args, f.BudgetID)
	}
	if f.Unbudgeted {
		where = append(where, `budget_id IS NULL`)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY transaction_date DESC, created_at DESC, id DESC`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CounterpartiesOf returns the other accounts sharing a row with id.
func (q *Queries) CounterpartiesOf(ctx context.Context, id string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT destination_account_id FROM transactions WHERE source_account_id = ? AND destination_account_id IS NOT NULL
		UNION
		SELECT source_account_id FROM transactions WHERE destination_account_id = ?
		ORDER BY 1`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			return nil, err
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

// DetachDestination clears id as destination, keeping its name on the row.
func (q *Queries) DetachDestination(ctx context.Context, id, name string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		destination_account_id = NULL,
		destination_name = CASE WHEN destination_name = '' THEN ? ELSE destination_name END,
		updated_at = ?
		WHERE destination_account_id = ?`, name, toUnix(at), id)
	return err
}

func (q *Queries) DeleteTransactionsBySource(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE source_account_id = ?`, id)
	return err
}

func (q *Queries) ClearBudget(ctx context.Context, budgetID string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE transactions SET budget_id = NULL WHERE budget_id = ?`, budgetID)
	return err
}

const categoryColumns = `id, name, group_id`

func scanCategory(r rowScanner) (core.Category, error) {
	var (
		c     core.Category
		group sql.NullString
	)
	if err := r.Scan(&c.ID, &c.Name, &group); err != nil {
		return core.Category{}, err
	}
	c.GroupID = group.String
	return c, nil
}

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?)`,
		c.ID, strings.TrimSpace(c.Name), nullString(c.GroupID))
	return err
}

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
}

func (q *Queries) GetCategoryByName(ctx context.Context, name string) (core.Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name)))
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) InsertCategoryGroup(ctx context.Context, g core.CategoryGroup) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO category_groups (id, name) VALUES (?, ?)`, g.ID, strings.TrimSpace(g.Name))
	return err
}

func (q *Queries) GetCategoryGroup(ctx context.Context, id string) (core.CategoryGroup, error) {
	var g core.CategoryGroup
	err := q.db.QueryRowContext(ctx, `SELECT id, name FROM category_groups WHERE id = ?`, id).Scan(&g.ID, &g.Name)
	return g, err
}

func (q *Queries) ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name FROM category_groups ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.CategoryGroup
	for rows.Next() {
		var g core.CategoryGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const budgetColumns = `id, name, description, amount_cents, start_date, end_date, group_id, created_at, updated_at`

func scanBudget(r rowScanner) (core.Budget, error) {
	var (
		b                      core.Budget
		amount, start, cr, upd int64
		end                    sql.NullInt64
		group                  sql.NullString
	)
	if err := r.Scan(&b.ID, &b.Name, &b.Description, &amount, &start, &end, &group, &cr, &upd); err != nil {
		return core.Budget{}, err
	}
	b.Amount = core.Cents(amount)
	b.StartDate = fromUnix(start)
	if end.Valid {
		e := fromUnix(end.Int64)
		b.EndDate = &e
	}
	b.GroupID = group.String
	b.CreatedAt, b.UpdatedAt = fromUnix(cr), fromUnix(upd)
	return b, nil
}

func budgetEnd(b core.Budget) sql.NullInt64 {
	if b.EndDate == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*b.EndDate), Valid: true}
}

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Description, b.Amount.Cents, toUnix(b.StartDate), budgetEnd(b), nullString(b.GroupID),
		toUnix(b.CreatedAt), toUnix(b.UpdatedAt))
	return err
}

func (q *Queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
}

func (q *Queries) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets ORDER BY start_date DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE budgets SET
		name = ?, description = ?, amount_cents = ?, start_date = ?, end_date = ?, group_id = ?, updated_at = ?
		WHERE id = ?`,
		b.Name, b.Description, b.Amount.Cents, toUnix(b.StartDate), budgetEnd(b), nullString(b.GroupID),
		toUnix(b.UpdatedAt), b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteBudget(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const ruleColumns = `id, name, description, is_active, priority, catch_all, conditions, actions, group_id, created_at, updated_at`

func scanRule(r rowScanner) (core.Rule, error) {
	var (
		rule        core.Rule
		conds, acts string
		group       sql.NullString
		cr, upd     int64
	)
	if err := r.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.IsActive, &rule.Priority, &rule.CatchAll,
		&conds, &acts, &group, &cr, &upd); err != nil {
		return core.Rule{}, err
	}
	if err := json.Unmarshal([]byte(conds), &rule.Conditions); err != nil {
		return core.Rule{}, fmt.Errorf("rule %s conditions: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(acts), &rule.Actions); err != nil {
		return core.Rule{}, fmt.Errorf("rule %s actions: %w", rule.ID, err)
	}
	rule.GroupID = group.String
	rule.CreatedAt, rule.UpdatedAt = fromUnix(cr), fromUnix(upd)
	return rule, nil
}

func ruleJSON(r core.Rule) (string, string, error) {
	conds := r.Conditions
	if conds == nil {
		conds = []core.Condition{}
	}
	c, err := json.Marshal(conds)
	if err != nil {
		return "", "", err
	}
	a, err := json.Marshal(r.Actions)
	if err != nil {
		return "", "", err
	}
	return string(c), string(a), nil
}

func (q *Queries) InsertRule(ctx context.Context, r core.Rule) error {
	conds, acts, err := ruleJSON(r)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.IsActive, r.Priority, r.CatchAll, conds, acts, nullString(r.GroupID),
		toUnix(r.CreatedAt), toUnix(r.UpdatedAt))
	return err
}

func (q *Queries) GetRule(ctx context.Context, id string) (core.Rule, error) {
	return scanRule(q.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
}

func (q *Queries) ListRules(ctx context.Context) ([]core.Rule, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY priority, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateRule(ctx context.Context, r core.Rule) (int64, error) {
	conds, acts, err := ruleJSON(r)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, `UPDATE rules SET
		name = ?, description = ?, is_active = ?, priority = ?, catch_all = ?, conditions = ?, actions = ?,
		group_id = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Description, r.IsActive, r.Priority, r.CatchAll, conds, acts, nullString(r.GroupID),
		toUnix(r.UpdatedAt), r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteRule(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// groupTable keeps rule and budget groups in separate tables.
func groupTable(kind core.GroupKind) (string, error) {
	switch kind {
	case core.RuleGroupKind:
		return "rule_groups", nil
	case core.BudgetGroupKind:
		return "budget_groups", nil
	}
	return "", core.CheckGroupKind(kind)
}

const groupColumns = `id, name, description, created_at, updated_at`

func scanGroup(r rowScanner) (core.Group, error) {
	var (
		g       core.Group
		cr, upd int64
	)
	if err := r.Scan(&g.ID, &g.Name, &g.Description, &cr, &upd); err != nil {
		return core.Group{}, err
	}
	g.CreatedAt, g.UpdatedAt = fromUnix(cr), fromUnix(upd)
	return g, nil
}

func (q *Queries) InsertGroup(ctx context.Context, table string, g core.Group) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO `+table+` (`+groupColumns+`) VALUES (?, ?, ?, ?, ?)`,
		g.ID, strings.TrimSpace(g.Name), g.Description, toUnix(g.CreatedAt), toUnix(g.UpdatedAt))
	return err
}

func (q *Queries) GetGroup(ctx context.Context, table, id string) (core.Group, error) {
	return scanGroup(q.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM `+table+` WHERE id = ?`, id))
}

func (q *Queries) ListGroups(ctx context.Context, table string) ([]core.Group, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM `+table+` ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateGroup(ctx context.Context, table string, g core.Group) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE `+table+` SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(g.Name), g.Description, toUnix(g.UpdatedAt), g.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteGroup(ctx context.Context, table, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	return v, err
}

func (q *Queries) PutSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toUnix(at))
	return err
}
