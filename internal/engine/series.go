package engine

import (
	"strings"
	"time"

	"ledger/internal/core"
)

// Snapshot is the read set a report is computed over.
type Snapshot struct {
	Accounts     []core.Account
	Transactions []core.Transaction
	Categories   []core.Category
	Groups       []core.CategoryGroup
}

// SeriesQuery selects accounts and a calendar range. An empty account
// set means every On Budget account.
type SeriesQuery struct {
	AccountIDs  []string
	Start       time.Time
	End         time.Time // inclusive
	Granularity Granularity
}

type (
	BalanceSeries struct {
		Granularity Granularity    `json:"granularity"`
		AccountIDs  []string       `json:"account_ids"`
		Points      []BalancePoint `json:"points"`
	}

	// BalancePoint holds each account's balance at the end of a period.
	BalancePoint struct {
		Period
		Balances map[string]core.Money `json:"balances"`
	}

	TotalPoint struct {
		Period
		Total core.Money `json:"total"`
	}

	CategorySeries struct {
		Granularity Granularity     `json:"granularity"`
		GroupBy     string          `json:"group_by"`
		Points      []CategoryPoint `json:"points"`
	}

	CategoryPoint struct {
		Period
		Amounts map[string]core.Money `json:"amounts"`
		Total   core.Money            `json:"total"`
	}

	FlowSeries struct {
		Granularity Granularity `json:"granularity"`
		Points      []FlowPoint `json:"points"`
	}

	// FlowPoint partitions a period's movements into inflow and outflow
	// per category. Outflow is reported as a positive magnitude.
	FlowPoint struct {
		Period
		Inflow       map[string]core.Money `json:"inflow"`
		Outflow      map[string]core.Money `json:"outflow"`
		TotalInflow  core.Money            `json:"total_inflow"`
		TotalOutflow core.Money            `json:"total_outflow"`
	}
)

// Summed reduces a per-account series to one combined line.
func (s BalanceSeries) Summed() []TotalPoint {
	out := make([]TotalPoint, len(s.Points))
	for i, p := range s.Points {
		var total core.Money
		for _, b := range p.Balances {
			total = total.Add(b)
		}
		out[i] = TotalPoint{Period: p.Period, Total: total}
	}
	return out
}

// SelectAccounts resolves the account set of a query.
func SelectAccounts(ids []string, accounts []core.Account) []string {
	if len(ids) > 0 {
		seen := make(map[string]bool, len(ids))
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return out
	}
	var out []string
	for _, a := range accounts {
		if a.Type.IsOnBudget() {
			out = append(out, a.ID)
		}
	}
	return out
}

// ComputeBalanceSeries seeds each account with its balance strictly
// before the first period and walks forward, applying each period's rows
// and recording the running balances at the period end.
func ComputeBalanceSeries(q SeriesQuery, snap Snapshot) (BalanceSeries, error) {
	periods, err := Periods(q.Start, q.End, q.Granularity)
	if err != nil {
		return BalanceSeries{}, err
	}
	ids := SelectAccounts(q.AccountIDs, snap.Accounts)
	from, until := periods[0].Start, periods[len(periods)-1].End

	running := make(map[string]core.Money, len(ids))
	skips := make(map[string]map[string]bool, len(ids))
	for _, id := range ids {
		skips[id] = SupersededOpenings(id, snap.Transactions)
		running[id] = BalanceBefore(id, from, snap.Transactions)
	}

	var window []core.Transaction
	for _, t := range snap.Transactions {
		if t.Date.Before(from) || !t.Date.Before(until) {
			continue
		}
		for _, id := range ids {
			if t.Touches(id) {
				window = append(window, t)
				break
			}
		}
	}
	SortByDate(window)

	series := BalanceSeries{Granularity: q.Granularity, AccountIDs: ids, Points: make([]BalancePoint, 0, len(periods))}
	next := 0
	for _, p := range periods {
		for ; next < len(window) && window[next].Date.Before(p.End); next++ {
			t := window[next]
			for _, id := range ids {
				if t.Touches(id) && !skips[id][t.ID] {
					running[id] = running[id].Add(t.Effect(id))
				}
			}
		}
		snapshot := make(map[string]core.Money, len(ids))
		for _, id := range ids {
			snapshot[id] = running[id]
		}
		series.Points = append(series.Points, BalancePoint{Period: p, Balances: snapshot})
	}
	return series, nil
}

// ComputeSpendingSeries sums outflows (amount > 0) whose source is in the
// account set, per period and category or category group. Transfers and
// Initial Balance rows are not spending.
func ComputeSpendingSeries(q SeriesQuery, snap Snapshot, byGroup bool) (CategorySeries, error) {
	periods, err := Periods(q.Start, q.End, q.Granularity)
	if err != nil {
		return CategorySeries{}, err
	}
	selected := toSet(SelectAccounts(q.AccountIDs, snap.Accounts))
	ix := newCategoryIndex(snap.Categories, snap.Groups)

	series := CategorySeries{Granularity: q.Granularity, GroupBy: "category", Points: make([]CategoryPoint, len(periods))}
	if byGroup {
		series.GroupBy = "category_group"
	}
	for i, p := range periods {
		series.Points[i] = CategoryPoint{Period: p, Amounts: map[string]core.Money{}}
	}

	for _, t := range snap.Transactions {
		if t.Amount.Cents <= 0 || !selected[t.SourceAccountID] || t.IsInitialBalance() {
			continue
		}
		name := ix.categoryName(t)
		if isTransfer(name) || t.IsTransferCategory() {
			continue
		}
		i := periodIndex(periods, t.Date)
		if i < 0 {
			continue
		}
		key := name
		if byGroup {
			key = ix.groupName(t)
		}
		pt := &series.Points[i]
		pt.Amounts[key] = pt.Amounts[key].Add(t.Amount)
		pt.Total = pt.Total.Add(t.Amount)
	}
	return series, nil
}

// ComputeFlowSeries partitions each period's movements on the selected
// accounts into inflow and outflow by category. Rows between two selected
// accounts are internal and skipped.
func ComputeFlowSeries(q SeriesQuery, snap Snapshot) (FlowSeries, error) {
	periods, err := Periods(q.Start, q.End, q.Granularity)
	if err != nil {
		return FlowSeries{}, err
	}
	selected := toSet(SelectAccounts(q.AccountIDs, snap.Accounts))
	ix := newCategoryIndex(snap.Categories, snap.Groups)

	series := FlowSeries{Granularity: q.Granularity, Points: make([]FlowPoint, len(periods))}
	for i, p := range periods {
		series.Points[i] = FlowPoint{Period: p, Inflow: map[string]core.Money{}, Outflow: map[string]core.Money{}}
	}

	for _, t := range snap.Transactions {
		if t.IsInitialBalance() {
			continue
		}
		src, dst := selected[t.SourceAccountID], t.DestinationAccountID != "" && selected[t.DestinationAccountID]
		if src == dst {
			continue
		}
		i := periodIndex(periods, t.Date)
		if i < 0 {
			continue
		}
		effect := t.Effect(t.SourceAccountID)
		if dst {
			effect = t.Effect(t.DestinationAccountID)
		}
		name := ix.categoryName(t)
		pt := &series.Points[i]
		if effect.Cents > 0 {
			pt.Inflow[name] = pt.Inflow[name].Add(effect)
			pt.TotalInflow = pt.TotalInflow.Add(effect)
		} else {
			pt.Outflow[name] = pt.Outflow[name].Add(effect.Abs())
			pt.TotalOutflow = pt.TotalOutflow.Add(effect.Abs())
		}
	}
	return series, nil
}

func periodIndex(periods []Period, d time.Time) int {
	lo, hi := 0, len(periods)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case d.Before(periods[mid].Start):
			hi = mid
		case !d.Before(periods[mid].End):
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func isTransfer(name string) bool {
	return strings.EqualFold(name, core.CategoryTransfer) || strings.EqualFold(name, core.CategoryTransfers)
}

type categoryIndex struct {
	byID   map[string]core.Category
	byName map[string]core.Category
	groups map[string]string
}

func newCategoryIndex(cats []core.Category, groups []core.CategoryGroup) categoryIndex {
	ix := categoryIndex{
		byID:   make(map[string]core.Category, len(cats)),
		byName: make(map[string]core.Category, len(cats)),
		groups: make(map[string]string, len(groups)),
	}
	for _, c := range cats {
		ix.byID[c.ID] = c
		ix.byName[strings.ToLower(c.Name)] = c
	}
	for _, g := range groups {
		ix.groups[g.ID] = g.Name
	}
	return ix
}

func (ix categoryIndex) lookup(t core.Transaction) (core.Category, bool) {
	if c, ok := ix.byID[t.CategoryID]; ok && t.CategoryID != "" {
		return c, true
	}
	if t.Category == "" {
		return core.Category{}, false
	}
	c, ok := ix.byName[strings.ToLower(t.Category)]
	return c, ok
}

func (ix categoryIndex) categoryName(t core.Transaction) string {
	if c, ok := ix.lookup(t); ok {
		return c.Name
	}
	if strings.TrimSpace(t.Category) != "" {
		return t.Category
	}
	return core.Uncategorized
}

func (ix categoryIndex) groupName(t core.Transaction) string {
	c, ok := ix.lookup(t)
	if !ok || c.GroupID == "" {
		return core.Ungrouped
	}
	if name, ok := ix.groups[c.GroupID]; ok {
		return name
	}
	return core.Ungrouped
}
