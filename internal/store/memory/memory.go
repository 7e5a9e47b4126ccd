// Package memory is an in-process store.Store used for local runs and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/store"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]core.Account
	txns     map[string]core.Transaction
	cats     map[string]core.Category
	groups   map[string]core.CategoryGroup
	budgets  map[string]core.Budget
	rules    map[string]core.Rule
	sets     map[core.GroupKind]map[string]core.Group
	settings map[string]string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: map[string]core.Account{},
		txns:     map[string]core.Transaction{},
		cats:     map[string]core.Category{},
		groups:   map[string]core.CategoryGroup{},
		budgets:  map[string]core.Budget{},
		rules:    map[string]core.Rule{},
		sets: map[core.GroupKind]map[string]core.Group{
			core.RuleGroupKind:   {},
			core.BudgetGroupKind: {},
		},
		settings: map[string]string{},
	}
}

// NewFromFiles seeds categories from base/seed_categories.txt. Each line is
// either "Category" or "Group: Category"; blank lines and # comments are
// skipped.
func NewFromFiles(base string) *Store {
	s := New()
	lines := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(lines) == 0 {
		lines = []string{"Groceries", "Transport", "Utilities"}
	}
	groupIDs := map[string]string{}
	for _, line := range lines {
		var group, name string
		if g, n, ok := strings.Cut(line, ":"); ok {
			group, name = strings.TrimSpace(g), strings.TrimSpace(n)
		} else {
			name = line
		}
		if name == "" {
			continue
		}
		c := core.Category{ID: uuid.NewString(), Name: name}
		if group != "" {
			key := strings.ToLower(group)
			if _, ok := groupIDs[key]; !ok {
				g := core.CategoryGroup{ID: uuid.NewString(), Name: group}
				s.groups[g.ID] = g
				groupIDs[key] = g.ID
			}
			c.GroupID = groupIDs[key]
		}
		if _, exists := s.findCategory(name); exists {
			continue
		}
		s.cats[c.ID] = c
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// Accounts

func (s *Store) CreateAccount(_ context.Context, a core.Account, opening *core.Transaction) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %q already exists", core.ErrConflict, a.ID)
	}
	if _, ok := s.findAccount(a.Name); ok {
		return fmt.Errorf("%w: account name %q already in use", core.ErrConflict, a.Name)
	}
	if opening != nil {
		if opening.SourceAccountID != a.ID {
			return fmt.Errorf("%w: opening row must be sourced from the new account", core.ErrValidation)
		}
		if _, ok := s.txns[opening.ID]; ok {
			return fmt.Errorf("%w: transaction %q already exists", core.ErrConflict, opening.ID)
		}
	}
	s.accounts[a.ID] = a
	if opening != nil {
		s.txns[opening.ID] = *opening
	}
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFound("account", id)
	}
	return a, nil
}

func (s *Store) FindAccountByName(_ context.Context, name string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.findAccount(name)
	if !ok {
		return core.Account{}, core.NotFound("account", name)
	}
	return a, nil
}

func (s *Store) findAccount(name string) (core.Account, bool) {
	name = strings.TrimSpace(name)
	for _, a := range s.accounts {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return core.Account{}, false
}

func (s *Store) ListAccounts(context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateAccount(_ context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return core.NotFound("account", a.ID)
	}
	if other, ok := s.findAccount(a.Name); ok && other.ID != a.ID {
		return fmt.Errorf("%w: account name %q already in use", core.ErrConflict, a.Name)
	}
	a.Balance = cur.Balance
	a.CreatedAt = cur.CreatedAt
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) SetCachedBalance(_ context.Context, id string, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.NotFound("account", id)
	}
	a.Balance = balance
	s.accounts[id] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, core.NotFound("account", id)
	}
	affected := map[string]struct{}{}
	for tid, t := range s.txns {
		switch {
		case t.SourceAccountID == id:
			if t.DestinationAccountID != "" {
				affected[t.DestinationAccountID] = struct{}{}
			}
			delete(s.txns, tid)
		case t.DestinationAccountID == id:
			t.DestinationAccountID = ""
			if t.DestinationName == "" {
				t.DestinationName = a.Name
			}
			s.txns[tid] = t
			affected[t.SourceAccountID] = struct{}{}
		}
	}
	delete(s.accounts, id)
	out := make([]string, 0, len(affected))
	for k := range affected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Transactions

func (s *Store) checkRefs(t core.Transaction) error {
	if _, ok := s.accounts[t.SourceAccountID]; !ok {
		return core.NotFound("account", t.SourceAccountID)
	}
	if t.DestinationAccountID != "" {
		if _, ok := s.accounts[t.DestinationAccountID]; !ok {
			return core.NotFound("account", t.DestinationAccountID)
		}
	}
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.ID]; ok {
		return fmt.Errorf("%w: transaction %q already exists", core.ErrConflict, t.ID)
	}
	if err := s.checkRefs(t); err != nil {
		return err
	}
	s.txns[t.ID] = t
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.ID]; !ok {
		return core.NotFound("transaction", t.ID)
	}
	if err := s.checkRefs(t); err != nil {
		return err
	}
	s.txns[t.ID] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[id]; !ok {
		return core.NotFound("transaction", id)
	}
	delete(s.txns, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	s.mu.Unlock()
	store.SortNewestFirst(out)
	return store.Page(out, f.Limit, f.Offset), nil
}

// Categories

func (s *Store) findCategory(name string) (core.Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range s.cats {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findCategory(c.Name); ok {
		return fmt.Errorf("%w: category %q already exists", core.ErrConflict, c.Name)
	}
	if c.GroupID != "" {
		if _, ok := s.groups[c.GroupID]; !ok {
			return core.NotFound("category group", c.GroupID)
		}
	}
	s.cats[c.ID] = c
	return nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *Store) FindCategoryByName(_ context.Context, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.findCategory(name)
	if !ok {
		return core.Category{}, core.NotFound("category", name)
	}
	return c, nil
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) CreateCategoryGroup(_ context.Context, g core.CategoryGroup) error {
	if strings.TrimSpace(g.Name) == "" {
		return core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if strings.EqualFold(existing.Name, g.Name) {
			return fmt.Errorf("%w: category group %q already exists", core.ErrConflict, g.Name)
		}
	}
	s.groups[g.ID] = g
	return nil
}

func (s *Store) GetCategoryGroup(_ context.Context, id string) (core.CategoryGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.CategoryGroup{}, core.NotFound("category group", id)
	}
	return g, nil
}

func (s *Store) ListCategoryGroups(context.Context) ([]core.CategoryGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CategoryGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// Budgets

func copyBudget(b core.Budget) core.Budget {
	if b.EndDate != nil {
		end := *b.EndDate
		b.EndDate = &end
	}
	return b
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; ok {
		return fmt.Errorf("%w: budget %q already exists", core.ErrConflict, b.ID)
	}
	if err := s.checkGroup(core.BudgetGroupKind, b.GroupID); err != nil {
		return err
	}
	s.budgets[b.ID] = copyBudget(b)
	return nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, core.NotFound("budget", id)
	}
	return copyBudget(b), nil
}

func (s *Store) ListBudgets(context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, copyBudget(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.budgets[b.ID]
	if !ok {
		return core.NotFound("budget", b.ID)
	}
	if err := s.checkGroup(core.BudgetGroupKind, b.GroupID); err != nil {
		return err
	}
	b.CreatedAt = cur.CreatedAt
	s.budgets[b.ID] = copyBudget(b)
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return core.NotFound("budget", id)
	}
	delete(s.budgets, id)
	for tid, t := range s.txns {
		if t.BudgetID == id {
			t.BudgetID = ""
			s.txns[tid] = t
		}
	}
	return nil
}

// Rules

func copyRule(r core.Rule) core.Rule {
	r.Conditions = append([]core.Condition(nil), r.Conditions...)
	r.Actions = append([]core.Action(nil), r.Actions...)
	return r
}

func (s *Store) CreateRule(_ context.Context, r core.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; ok {
		return fmt.Errorf("%w: rule %q already exists", core.ErrConflict, r.ID)
	}
	if err := s.checkGroup(core.RuleGroupKind, r.GroupID); err != nil {
		return err
	}
	s.rules[r.ID] = copyRule(r)
	return nil
}

func (s *Store) GetRule(_ context.Context, id string) (core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return core.Rule{}, core.NotFound("rule", id)
	}
	return copyRule(r), nil
}

func (s *Store) ListRules(context.Context) ([]core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, copyRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateRule(_ context.Context, r core.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rules[r.ID]
	if !ok {
		return core.NotFound("rule", r.ID)
	}
	if err := s.checkGroup(core.RuleGroupKind, r.GroupID); err != nil {
		return err
	}
	r.CreatedAt = cur.CreatedAt
	s.rules[r.ID] = copyRule(r)
	return nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return core.NotFound("rule", id)
	}
	delete(s.rules, id)
	return nil
}

// Groups

func (s *Store) checkGroup(kind core.GroupKind, id string) error {
	if id == "" {
		return nil
	}
	if _, ok := s.sets[kind][id]; !ok {
		return core.NotFound(string(kind)+" group", id)
	}
	return nil
}

func (s *Store) CreateGroup(_ context.Context, kind core.GroupKind, g core.Group) error {
	if err := core.CheckGroupKind(kind); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.sets[kind] {
		if cur.ID == g.ID || strings.EqualFold(cur.Name, g.Name) {
			return fmt.Errorf("%w: %s group %q already exists", core.ErrConflict, kind, g.Name)
		}
	}
	s.sets[kind][g.ID] = g
	return nil
}

func (s *Store) GetGroup(_ context.Context, kind core.GroupKind, id string) (core.Group, error) {
	if err := core.CheckGroupKind(kind); err != nil {
		return core.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sets[kind][id]
	if !ok {
		return core.Group{}, core.NotFound(string(kind)+" group", id)
	}
	return g, nil
}

func (s *Store) ListGroups(_ context.Context, kind core.GroupKind) ([]core.Group, error) {
	if err := core.CheckGroupKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Group, 0, len(s.sets[kind]))
	for _, g := range s.sets[kind] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) UpdateGroup(_ context.Context, kind core.GroupKind, g core.Group) error {
	if err := core.CheckGroupKind(kind); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sets[kind][g.ID]
	if !ok {
		return core.NotFound(string(kind)+" group", g.ID)
	}
	for _, other := range s.sets[kind] {
		if other.ID != g.ID && strings.EqualFold(other.Name, g.Name) {
			return fmt.Errorf("%w: %s group %q already exists", core.ErrConflict, kind, g.Name)
		}
	}
	g.CreatedAt = cur.CreatedAt
	s.sets[kind][g.ID] = g
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, kind core.GroupKind, id string) error {
	if err := core.CheckGroupKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[kind][id]; !ok {
		return core.NotFound(string(kind)+" group", id)
	}
	delete(s.sets[kind], id)
	switch kind {
	case core.RuleGroupKind:
		for rid, r := range s.rules {
			if r.GroupID == id {
				r.GroupID = ""
				s.rules[rid] = r
			}
		}
	case core.BudgetGroupKind:
		for bid, b := range s.budgets {
			if b.GroupID == id {
				b.GroupID = ""
				s.budgets[bid] = b
			}
		}
	}
	return nil
}

// Settings

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return "", core.NotFound("setting", key)
	}
	return v, nil
}

func (s *Store) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
