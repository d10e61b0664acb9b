package engine

import (
	"context"
	"log"
	"math"
	"sync"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// roundFixed rounds to 2 decimal places. All P&L arithmetic goes through
// this so accumulated floats stay presentable.
func roundFixed(v float64) float64 {
	return math.Round(v*100) / 100
}

// Tracker accumulates running P&L and enforces session risk limits.
// Lifetime totals survive "trade again" loops; session counters reset when
// a new session begins. An optional TotalsStore makes lifetime totals
// survive process restarts.
type Tracker struct {
	mu      sync.Mutex
	totals  domain.SessionTotals
	settled map[int64]bool // contract ids already committed

	account string
	store   storage.TotalsStore
}

// NewTracker creates a Tracker. store may be nil; account keys the
// persisted lifetime totals.
func NewTracker(store storage.TotalsStore, account string) *Tracker {
	return &Tracker{
		settled: make(map[int64]bool),
		store:   store,
		account: account,
	}
}

// Restore loads persisted lifetime totals. ErrNotFound is a fresh account,
// not an error.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	persisted, err := t.store.Load(ctx, t.account)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}
	t.mu.Lock()
	session := t.totals
	t.totals = *persisted
	t.totals.SessionRuns = session.SessionRuns
	t.totals.SessionProfit = session.SessionProfit
	t.mu.Unlock()
	return nil
}

// ResetSession zeroes the session-scoped counters. Called when a new
// session begins; lifetime totals are untouched.
func (t *Tracker) ResetSession() {
	t.mu.Lock()
	t.totals.SessionRuns = 0
	t.totals.SessionProfit = 0
	t.mu.Unlock()
}

// CheckLimits raises a LimitsError when the configured limits are hit.
// Only enforced when both MaxLoss and MaxTrades are set; evaluated
// synchronously before a new purchase cycle may begin.
func (t *Tracker) CheckLimits(opt *domain.TradeOption) error {
	if opt == nil || opt.Limitations == nil {
		return nil
	}
	lim := opt.Limitations
	if lim.MaxLoss == 0 || lim.MaxTrades == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totals.SessionRuns >= lim.MaxTrades {
		return &LimitsError{Reason: "maxTrades"}
	}
	if t.totals.SessionProfit <= -lim.MaxLoss {
		return &LimitsError{Reason: "maxLoss"}
	}
	return nil
}

// IncrementRuns advances the run counters for a new purchase and returns
// their values after the increment.
func (t *Tracker) IncrementRuns() (sessionRuns, totalRuns int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.SessionRuns++
	t.totals.TotalRuns++
	return t.totals.SessionRuns, t.totals.TotalRuns
}

// Update commits a settled contract into the totals, exactly once per
// contract id. Returns the rounded profit and whether this call committed
// (false for a duplicate settlement delivery).
func (t *Tracker) Update(contract *domain.OpenContract) (profit float64, committed bool) {
	if contract == nil || contract.SellPrice == nil {
		return 0, false
	}

	t.mu.Lock()
	if t.settled[contract.ContractID] {
		t.mu.Unlock()
		return 0, false
	}
	t.settled[contract.ContractID] = true

	sellPrice := *contract.SellPrice
	profit = roundFixed(sellPrice - contract.BuyPrice)

	if profit > 0 {
		t.totals.TotalWins++
	} else if profit < 0 {
		t.totals.TotalLosses++
	}
	t.totals.SessionProfit = roundFixed(t.totals.SessionProfit + profit)
	t.totals.TotalProfit = roundFixed(t.totals.TotalProfit + profit)
	t.totals.TotalStake = roundFixed(t.totals.TotalStake + contract.BuyPrice)
	t.totals.TotalPayout = roundFixed(t.totals.TotalPayout + sellPrice)
	snapshot := t.totals
	t.mu.Unlock()

	t.persist(&snapshot)
	return profit, true
}

// persist writes lifetime totals through the store, best effort.
func (t *Tracker) persist(totals *domain.SessionTotals) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(context.Background(), t.account, totals); err != nil {
		log.Printf("[totals] persist failed: %v", err)
	}
}

// Snapshot returns a copy of the current totals.
func (t *Tracker) Snapshot() domain.SessionTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}
