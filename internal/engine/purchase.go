package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
	"binarybot/internal/idhash"
	"binarybot/internal/storage"
)

// purchaseState is the lifecycle of one purchase cycle.
type purchaseState int

const (
	stateIdle purchaseState = iota
	stateProposalsPending
	stateReady
	statePurchasing
	stateHolding
	stateSettled
)

// purchaseController owns the lifecycle of a single purchase: contract
// selection, the buy request, the open-contract subscription and
// settlement. The engine creates a fresh controller per cycle.
type purchaseController struct {
	client    api.Client
	retrier   *Retrier
	totals    *Tracker
	proposals *proposalManager
	scopes    *scopeMachine
	records   storage.TradeRecordStore

	account  string
	symbol   string
	currency string

	// unregisterCycle drops every handler registered under this cycle's
	// observer group; settlement and stop both go through it.
	unregisterCycle func()
	emit            func(topic string, payload any)

	mu         sync.Mutex
	state      purchaseState
	contractID int64
	contract   *domain.OpenContract
	sessionRun int
	totalRun   int
}

// PurchaseInfo is the telemetry payload emitted on a successful buy.
type PurchaseInfo struct {
	ContractType  string
	ContractID    int64
	TransactionID int64
	BuyPrice      float64
	Payout        float64
	TotalRuns     int
	LongCode      string
}

// SettlementInfo is the telemetry payload emitted when a contract
// settles, after totals have been committed.
type SettlementInfo struct {
	Contract *domain.OpenContract
	Profit   float64
	Totals   domain.SessionTotals
}

// markProposalsPending moves idle → proposalsPending when the request
// round begins.
func (p *purchaseController) markProposalsPending() {
	p.mu.Lock()
	if p.state == stateIdle {
		p.state = stateProposalsPending
	}
	p.mu.Unlock()
}

// markReady moves proposalsPending → ready once readiness is met, unless
// a purchase was already made this cycle.
func (p *purchaseController) markReady() {
	p.mu.Lock()
	if p.state == stateProposalsPending {
		p.state = stateReady
	}
	p.mu.Unlock()
}

// Purchase buys the proposal for contractType at its current ask price.
// Duplicate calls in one cycle return ErrAlreadyPurchased without issuing
// a second buy. A failed buy leaves the state at ready so the strategy
// may retry; transient failures are retried transparently first.
func (p *purchaseController) Purchase(ctx context.Context, contractType string) (*api.BuyResult, error) {
	p.mu.Lock()
	switch p.state {
	case statePurchasing, stateHolding, stateSettled:
		p.mu.Unlock()
		return nil, ErrAlreadyPurchased
	case stateReady:
		p.state = statePurchasing
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		return nil, ErrNoProposal
	}

	proposal, err := p.proposals.Select(contractType)
	if err != nil {
		p.revertToReady()
		return nil, err
	}

	var buy *api.BuyResult
	err = p.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		buy, err = p.client.Buy(ctx, proposal.ID, proposal.AskPrice)
		return err
	})
	if err != nil {
		p.revertToReady()
		return nil, err
	}

	sessionRun, totalRun := p.totals.IncrementRuns()

	p.mu.Lock()
	p.state = stateHolding
	p.contractID = buy.ContractID
	p.sessionRun, p.totalRun = sessionRun, totalRun
	p.mu.Unlock()

	if err := p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.client.SubscribeOpenContract(ctx, buy.ContractID)
	}); err != nil {
		// The buy stands; without the stream the contract cannot be
		// tracked, so surface the failure after logging.
		log.Printf("[purchase] open contract subscribe failed: %v", err)
		return buy, err
	}

	p.emit(TopicPurchase, PurchaseInfo{
		ContractType:  contractType,
		ContractID:    buy.ContractID,
		TransactionID: buy.TransactionID,
		BuyPrice:      buy.BuyPrice,
		Payout:        buy.Payout,
		TotalRuns:     totalRun,
		LongCode:      buy.LongCode,
	})

	// Unblock any script waiting on the before scope.
	p.scopes.signalPurchased()
	return buy, nil
}

func (p *purchaseController) revertToReady() {
	p.mu.Lock()
	if p.state == statePurchasing {
		p.state = stateReady
	}
	p.mu.Unlock()
}

// HandleContract consumes one open-contract update. Updates for other
// contract ids (stale cycles) are dropped.
func (p *purchaseController) HandleContract(update *domain.OpenContract) {
	p.mu.Lock()
	if p.state != stateHolding || update.ContractID != p.contractID {
		p.mu.Unlock()
		return
	}
	p.contract = update
	settled := update.Settled()
	if settled {
		p.state = stateSettled
	}
	p.mu.Unlock()

	if settled {
		p.settle(update)
		return
	}

	p.emit(TopicTradeUpdate, update)
	p.scopes.enter(ScopeDuring)
}

// settle finalizes the cycle: handlers for this cycle are dropped first
// so a late duplicate delivery cannot re-enter, then totals commit, then
// the settlement event fires with consistent totals visible.
func (p *purchaseController) settle(contract *domain.OpenContract) {
	p.unregisterCycle()

	profit, committed := p.totals.Update(contract)
	if committed {
		p.persistRecord(contract, profit)
	}

	p.emit(TopicTradeInfo, p.totals.Snapshot())
	p.emit(TopicFinish, SettlementInfo{
		Contract: contract,
		Profit:   profit,
		Totals:   p.totals.Snapshot(),
	})
	p.scopes.enter(ScopeAfter)
}

// persistRecord writes the finalized trade through the record store.
func (p *purchaseController) persistRecord(contract *domain.OpenContract, profit float64) {
	if p.records == nil {
		return
	}
	record := &domain.TradeRecord{
		TradeID:           idhash.ComputeTradeID(p.account, contract.ContractID, contract.TransactionIDBuy),
		ContractID:        contract.ContractID,
		ContractType:      contract.ContractType,
		Symbol:            p.symbol,
		Currency:          p.currency,
		BuyPrice:          contract.BuyPrice,
		SellPrice:         *contract.SellPrice,
		Payout:            contract.Payout,
		Profit:            profit,
		EntrySpot:         contract.EntrySpot,
		ExitSpot:          contract.ExitSpot,
		DateStart:         contract.DateStart,
		DateSold:          contract.DateSold,
		TransactionIDBuy:  contract.TransactionIDBuy,
		TransactionIDSell: contract.TransactionIDSell,
		SessionRun:        p.sessionRun,
		TotalRun:          p.totalRun,
	}
	if err := p.records.Insert(context.Background(), record); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			log.Printf("[purchase] trade record insert failed: %v", err)
		}
	}
}

// IsSellAvailable reports whether the held contract can be sold back at
// market right now.
func (p *purchaseController) IsSellAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateHolding && p.contract != nil &&
		p.contract.IsValidToSell && !p.contract.IsExpired
}

// SellAtMarket sells the held contract at the current market price.
// Settlement still arrives through the open-contract stream.
func (p *purchaseController) SellAtMarket(ctx context.Context) (*api.SellResult, error) {
	p.mu.Lock()
	available := p.state == stateHolding && p.contract != nil &&
		p.contract.IsValidToSell && !p.contract.IsExpired
	contractID := p.contractID
	p.mu.Unlock()

	if !available {
		return nil, ErrSellUnavailable
	}

	var result *api.SellResult
	err := p.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.client.Sell(ctx, contractID, 0)
		return err
	})
	return result, err
}

// Contract returns the latest open contract snapshot.
func (p *purchaseController) Contract() *domain.OpenContract {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contract
}
