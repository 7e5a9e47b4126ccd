// Package engine derives balances, time series and budget figures from
// the transaction log. Every function is a pure computation over the rows
// it is given; the cached account balance is never an input.
package engine

import (
	"sort"
	"time"

	"ledger/internal/core"
)

// BalanceAt sums the effects on accountID of every transaction dated at
// or before instant, starting from zero.
func BalanceAt(accountID string, instant time.Time, txns []core.Transaction) core.Money {
	return sumEffects(accountID, txns, func(d time.Time) bool { return !d.After(instant) })
}

// BalanceBefore is BalanceAt with a strict bound. Series use it as the
// seed so a row dated exactly at the range start is counted once.
func BalanceBefore(accountID string, instant time.Time, txns []core.Transaction) core.Money {
	return sumEffects(accountID, txns, func(d time.Time) bool { return d.Before(instant) })
}

// Replay is the full-history balance of accountID.
func Replay(accountID string, txns []core.Transaction) core.Money {
	return sumEffects(accountID, txns, func(time.Time) bool { return true })
}

func sumEffects(accountID string, txns []core.Transaction, include func(time.Time) bool) core.Money {
	skip := SupersededOpenings(accountID, txns)
	var total core.Money
	for _, t := range txns {
		if !t.Touches(accountID) || skip[t.ID] || !include(t.Date) {
			continue
		}
		total = total.Add(t.Effect(accountID))
	}
	return total
}

// SupersededOpenings returns the ids of Initial Balance rows on accountID
// that must be ignored because an earlier one exists. Only the earliest by
// date (then creation time, then id) is applied.
func SupersededOpenings(accountID string, txns []core.Transaction) map[string]bool {
	var openings []core.Transaction
	for _, t := range txns {
		if t.IsInitialBalance() && t.Touches(accountID) {
			openings = append(openings, t)
		}
	}
	if len(openings) < 2 {
		return nil
	}
	sort.Slice(openings, func(i, j int) bool { return before(openings[i], openings[j]) })
	skip := make(map[string]bool, len(openings)-1)
	for _, t := range openings[1:] {
		skip[t.ID] = true
	}
	return skip
}

// before orders transactions by date, then creation time, then id.
func before(a, b core.Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortByDate orders txns in place by date, creation time and id.
func SortByDate(txns []core.Transaction) {
	sort.Slice(txns, func(i, j int) bool { return before(txns[i], txns[j]) })
}
