package api

import (
	"context"

	"binarybot/internal/domain"
)

// Client is the remote trading API consumed by the engine. The WebSocket
// implementation is WSClient; tests use the scripted stub.
type Client interface {
	// Authorize authenticates the session token.
	Authorize(ctx context.Context, token string) (*AuthorizeResult, error)

	// Balance subscribes to balance updates and returns the current
	// balance. Updates stream as TopicBalance pushes.
	Balance(ctx context.Context) (*BalanceUpdate, error)

	// History fetches tick or candle history for symbol; with
	// req.Subscribe the stream continues as TopicTick/TopicOHLC pushes.
	History(ctx context.Context, symbol string, req HistoryRequest) (*HistoryResult, error)

	// SubscribeProposal requests a streamed price proposal. The returned
	// proposal carries the subscription id; updates arrive as
	// TopicProposal pushes keyed by that id.
	SubscribeProposal(ctx context.Context, req ProposalRequest) (*domain.Proposal, error)

	// Buy purchases the proposal at the quoted price.
	Buy(ctx context.Context, proposalID string, price float64) (*BuyResult, error)

	// Sell sells an open contract at market.
	Sell(ctx context.Context, contractID int64, price float64) (*SellResult, error)

	// SubscribeOpenContract streams updates for a purchased contract as
	// TopicOpenContract pushes.
	SubscribeOpenContract(ctx context.Context, contractID int64) error

	// Forget cancels one subscription by id.
	Forget(ctx context.Context, id string) error

	// ForgetAll cancels every subscription of the given stream types
	// ("ticks", "candles", "proposal", "balance", "proposal_open_contract").
	ForgetAll(ctx context.Context, types ...string) error

	// Close tears the connection down.
	Close() error
}
