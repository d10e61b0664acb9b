package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
)

// buildProposalRequests computes one subscription request per contract
// type from the trade option. Prediction takes precedence over
// barrierOffset for the first barrier, matching the trade definition
// blocks that set exactly one of them.
func buildProposalRequests(opt *domain.TradeOption) []api.ProposalRequest {
	barrier := ""
	if opt.Prediction != nil {
		barrier = strconv.FormatFloat(*opt.Prediction, 'f', -1, 64)
	} else if opt.BarrierOffset != nil {
		barrier = strconv.FormatFloat(*opt.BarrierOffset, 'f', -1, 64)
	}
	barrier2 := ""
	if opt.SecondBarrierOffset != nil {
		barrier2 = strconv.FormatFloat(*opt.SecondBarrierOffset, 'f', -1, 64)
	}

	reqs := make([]api.ProposalRequest, 0, len(opt.ContractTypes))
	for _, contractType := range opt.ContractTypes {
		reqs = append(reqs, api.ProposalRequest{
			ContractType: contractType,
			Symbol:       opt.Symbol,
			Duration:     opt.Duration,
			DurationUnit: opt.DurationUnit,
			Basis:        opt.Basis,
			Currency:     opt.Currency,
			Amount:       fmt.Sprintf("%.2f", opt.Amount),
			Barrier:      barrier,
			Barrier2:     barrier2,
		})
	}
	return reqs
}

// proposalManager requests and tracks live price proposals for the
// current trade option. It owns the proposal subscriptions on the shared
// connection and guarantees at most one active proposal per contract type.
type proposalManager struct {
	client  api.Client
	retrier *Retrier

	// onUpdate fires for the initial arrival and every streamed refresh.
	onUpdate func(*domain.Proposal)

	mu       sync.Mutex
	current  *domain.TradeOption
	expected int
	byID     map[string]*domain.Proposal
	byType   map[string]*domain.Proposal
}

func newProposalManager(client api.Client, retrier *Retrier) *proposalManager {
	return &proposalManager{
		client:  client,
		retrier: retrier,
		byID:    make(map[string]*domain.Proposal),
		byType:  make(map[string]*domain.Proposal),
	}
}

// Request issues proposal subscriptions for the trade option. A repeat
// call with economically identical fields is a no-op, so strategies that
// re-declare the same trade do not churn subscriptions. Previous
// subscriptions are dropped before new ones are issued to avoid double
// authorization from leftovers.
func (p *proposalManager) Request(ctx context.Context, opt *domain.TradeOption) error {
	p.mu.Lock()
	if p.current != nil && opt.EconomicallyEqual(p.current) {
		p.mu.Unlock()
		return nil
	}
	p.current = opt
	previous := p.subscriptionIDs()
	p.byID = make(map[string]*domain.Proposal)
	p.byType = make(map[string]*domain.Proposal)
	p.expected = len(opt.ContractTypes)
	p.mu.Unlock()

	// Unsubscribe must complete before re-subscribing; a stale
	// subscription for the same contract type double-authorizes.
	for _, id := range previous {
		id := id
		if err := p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.client.Forget(ctx, id)
		}); err != nil {
			return fmt.Errorf("forget proposal %s: %w", id, err)
		}
	}

	for _, req := range buildProposalRequests(opt) {
		req := req
		var proposal *domain.Proposal
		err := p.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			proposal, err = p.client.SubscribeProposal(ctx, req)
			return err
		})
		if err != nil {
			return fmt.Errorf("subscribe proposal %s: %w", req.ContractType, err)
		}
		p.store(proposal)
	}
	return nil
}

// store records an arrived proposal. Readiness is met once every
// subscription round trip in Request has stored its response.
func (p *proposalManager) store(proposal *domain.Proposal) {
	p.mu.Lock()
	p.byID[proposal.ID] = proposal
	p.byType[proposal.ContractType] = proposal
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(proposal)
	}
}

// HandleUpdate refreshes a stored proposal from a streamed push. Unknown
// ids are stale subscriptions already forgotten and are dropped.
func (p *proposalManager) HandleUpdate(update *domain.Proposal) {
	p.mu.Lock()
	known, ok := p.byID[update.ID]
	if !ok {
		p.mu.Unlock()
		return
	}
	refreshed := *update
	refreshed.ContractType = known.ContractType
	p.byID[update.ID] = &refreshed
	p.byType[refreshed.ContractType] = &refreshed
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(&refreshed)
	}
}

// Ready reports whether every expected proposal has arrived.
func (p *proposalManager) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expected > 0 && len(p.byType) == p.expected
}

// Get returns the proposal for a contract type.
func (p *proposalManager) Get(contractType string) (*domain.Proposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proposal, ok := p.byType[contractType]
	return proposal, ok
}

// Select returns the proposal to buy and schedules unsubscription of the
// others, freeing server-side subscription slots. The forgets are
// fire-and-forget with retry; a failure there cannot block the purchase.
func (p *proposalManager) Select(contractType string) (*domain.Proposal, error) {
	p.mu.Lock()
	selected, ok := p.byType[contractType]
	var others []string
	for id, proposal := range p.byID {
		if proposal.ContractType != contractType {
			others = append(others, id)
		}
	}
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProposal, contractType)
	}

	for _, id := range others {
		id := id
		go func() {
			_ = p.retrier.Do(context.Background(), func(ctx context.Context) error {
				return p.client.Forget(ctx, id)
			})
		}()
	}
	return selected, nil
}

// UnsubscribeAll forgets every tracked proposal, best effort. Used on
// stop and cycle teardown.
func (p *proposalManager) UnsubscribeAll(ctx context.Context) {
	p.mu.Lock()
	ids := p.subscriptionIDs()
	p.byID = make(map[string]*domain.Proposal)
	p.byType = make(map[string]*domain.Proposal)
	p.current = nil
	p.expected = 0
	p.mu.Unlock()

	for _, id := range ids {
		_ = p.client.Forget(ctx, id)
	}
}

// subscriptionIDs returns the ids of all tracked proposals. Caller holds mu.
func (p *proposalManager) subscriptionIDs() []string {
	ids := make([]string, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	return ids
}
