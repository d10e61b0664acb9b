// Package stub provides a scripted trading API client for engine tests.
// Every method succeeds with canned data unless the test installs a
// function override or queues errors; push events are injected by the
// test through the same emitter the engine listens on.
package stub

import (
	"context"
	"fmt"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
)

// Client implements api.Client in memory.
type Client struct {
	Emitter api.Emitter

	mu sync.Mutex

	// Per-method overrides. Nil means the canned default.
	AuthorizeFunc         func(token string) (*api.AuthorizeResult, error)
	BalanceFunc           func() (*api.BalanceUpdate, error)
	HistoryFunc           func(symbol string, req api.HistoryRequest) (*api.HistoryResult, error)
	SubscribeProposalFunc func(req api.ProposalRequest) (*domain.Proposal, error)
	BuyFunc               func(proposalID string, price float64) (*api.BuyResult, error)
	SellFunc              func(contractID int64, price float64) (*api.SellResult, error)

	// authorizeErrs are consumed one per Authorize call before the
	// override/default runs; used for retry scenarios.
	authorizeErrs []error

	calls        []string
	forgottenIDs []string
	proposalSeq  int
	contractSeq  int64
}

var _ api.Client = (*Client)(nil)

// New creates a stub client wired to emitter.
func New(emitter api.Emitter) *Client {
	return &Client{Emitter: emitter, contractSeq: 1000}
}

// QueueAuthorizeErrors makes the next len(errs) Authorize calls fail in order.
func (c *Client) QueueAuthorizeErrors(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorizeErrs = append(c.authorizeErrs, errs...)
}

// Calls returns the ordered method log.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// ForgottenIDs returns every id passed to Forget.
func (c *Client) ForgottenIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.forgottenIDs))
	copy(out, c.forgottenIDs)
	return out
}

// Push injects a push event as if it arrived from the server.
func (c *Client) Push(topic string, payload any) {
	if c.Emitter != nil {
		c.Emitter.Emit(topic, payload)
	}
}

func (c *Client) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *Client) Authorize(_ context.Context, token string) (*api.AuthorizeResult, error) {
	c.record("authorize")

	c.mu.Lock()
	if len(c.authorizeErrs) > 0 {
		err := c.authorizeErrs[0]
		c.authorizeErrs = c.authorizeErrs[1:]
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if c.AuthorizeFunc != nil {
		return c.AuthorizeFunc(token)
	}
	return &api.AuthorizeResult{LoginID: "VRTC001", Currency: "USD", Balance: 10000}, nil
}

func (c *Client) Balance(_ context.Context) (*api.BalanceUpdate, error) {
	c.record("balance")
	if c.BalanceFunc != nil {
		return c.BalanceFunc()
	}
	return &api.BalanceUpdate{Balance: 10000, Currency: "USD"}, nil
}

func (c *Client) History(_ context.Context, symbol string, req api.HistoryRequest) (*api.HistoryResult, error) {
	c.record("history:" + symbol + ":" + req.Style)
	if c.HistoryFunc != nil {
		return c.HistoryFunc(symbol, req)
	}

	result := &api.HistoryResult{}
	if req.Style == "candles" {
		for i := 0; i < 3; i++ {
			result.Candles = append(result.Candles, domain.Candle{
				Symbol: symbol, Epoch: int64(1000 + i*60),
				Open: 100, High: 101, Low: 99, Close: 100.5,
				Interval: req.Granularity,
			})
		}
	} else {
		for i := 0; i < 3; i++ {
			result.Ticks = append(result.Ticks, domain.Tick{
				Symbol: symbol, Epoch: int64(1000 + i), Quote: 100 + float64(i), PipSize: 2,
			})
		}
	}
	return result, nil
}

func (c *Client) SubscribeProposal(_ context.Context, req api.ProposalRequest) (*domain.Proposal, error) {
	c.record("proposal:" + req.ContractType)
	if c.SubscribeProposalFunc != nil {
		return c.SubscribeProposalFunc(req)
	}

	c.mu.Lock()
	c.proposalSeq++
	id := fmt.Sprintf("proposal-%d", c.proposalSeq)
	c.mu.Unlock()

	return &domain.Proposal{
		ID:           id,
		ContractType: req.ContractType,
		AskPrice:     1.0,
		Payout:       1.95,
	}, nil
}

func (c *Client) Buy(_ context.Context, proposalID string, price float64) (*api.BuyResult, error) {
	c.record("buy:" + proposalID)
	if c.BuyFunc != nil {
		return c.BuyFunc(proposalID, price)
	}

	c.mu.Lock()
	c.contractSeq++
	id := c.contractSeq
	c.mu.Unlock()

	return &api.BuyResult{
		ContractID:    id,
		TransactionID: id * 10,
		BuyPrice:      price,
		Payout:        1.95,
		StartTime:     2000,
	}, nil
}

func (c *Client) Sell(_ context.Context, contractID int64, price float64) (*api.SellResult, error) {
	c.record(fmt.Sprintf("sell:%d", contractID))
	if c.SellFunc != nil {
		return c.SellFunc(contractID, price)
	}
	return &api.SellResult{ContractID: contractID, TransactionID: contractID*10 + 1, SoldFor: price}, nil
}

func (c *Client) SubscribeOpenContract(_ context.Context, contractID int64) error {
	c.record(fmt.Sprintf("open_contract:%d", contractID))
	return nil
}

func (c *Client) Forget(_ context.Context, id string) error {
	c.record("forget:" + id)
	c.mu.Lock()
	c.forgottenIDs = append(c.forgottenIDs, id)
	c.mu.Unlock()
	return nil
}

func (c *Client) ForgetAll(_ context.Context, types ...string) error {
	for _, t := range types {
		c.record("forget_all:" + t)
	}
	return nil
}

func (c *Client) Close() error {
	c.record("close")
	return nil
}
