package engine

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Start when Init has not completed.
var ErrNotInitialized = errors.New("engine not initialized: call Init first")

// ErrNoProposal is returned when a purchase names a contract type that has
// no ready proposal.
var ErrNoProposal = errors.New("no proposal for contract type")

// ErrAlreadyPurchased is returned for duplicate purchase calls within one
// cycle. The first purchase stands; callers usually ignore this.
var ErrAlreadyPurchased = errors.New("contract already purchased this cycle")

// ErrSellUnavailable is returned by SellAtMarket when no open contract can
// currently be sold.
var ErrSellUnavailable = errors.New("sell at market not available")

// ErrWatchPending is returned when a second Watch is issued for a scope
// that already has a pending watcher. The script runtime is sequential,
// so this indicates a bridge bug rather than a race to tolerate.
var ErrWatchPending = errors.New("watch already pending for scope")

// LimitsError is the session-level control signal raised when configured
// risk limits are hit. It is reported via telemetry and never retried.
type LimitsError struct {
	Reason string // "maxTrades" or "maxLoss"
}

func (e *LimitsError) Error() string {
	switch e.Reason {
	case "maxTrades":
		return "maximum number of trades reached"
	case "maxLoss":
		return "maximum loss amount reached"
	default:
		return fmt.Sprintf("session limit reached: %s", e.Reason)
	}
}
