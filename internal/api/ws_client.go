package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"binarybot/internal/domain"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// CallTimeout bounds one request/response round trip.
	CallTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		CallTimeout:       30 * time.Second,
	}
}

// WSClient implements Client over a single WebSocket connection to the
// trading API. Requests are correlated to responses by req_id; stream
// pushes without a pending waiter are decoded and handed to the Emitter.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	emitter  Emitter

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	reqID  atomic.Int64

	// pending maps req_id to the channel waiting for the first response
	pending   map[int64]chan *response
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

var _ Client = (*WSClient)(nil)

// NewWSClient connects to the endpoint and starts the reader and ping
// loops. Push events are delivered to emitter.
func NewWSClient(ctx context.Context, endpoint string, emitter Emitter, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		emitter:  emitter,
		pending:  make(map[int64]chan *response),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// call sends one request and waits for its correlated response.
func (c *WSClient) call(ctx context.Context, req *request) (*response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	req.ReqID = c.reqID.Add(1)

	respCh := make(chan *response, 1)
	c.pendingMu.Lock()
	c.pending[req.ReqID] = respCh
	c.pendingMu.Unlock()

	drop := func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ReqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		drop()
		return nil, ErrDisconnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		drop()
		return nil, fmt.Errorf("write request: %w", ErrDisconnected)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrDisconnected
		}
		if resp.Error != nil {
			return nil, &APIError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp, nil
	case <-time.After(c.config.CallTimeout):
		drop()
		return nil, fmt.Errorf("call timeout after %s", c.config.CallTimeout)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	}
}

// Authorize authenticates the session token.
func (c *WSClient) Authorize(ctx context.Context, token string) (*AuthorizeResult, error) {
	resp, err := c.call(ctx, &request{Authorize: token})
	if err != nil {
		return nil, err
	}
	if resp.Authorize == nil {
		return nil, &APIError{Code: CodeWrongResponse, Message: "authorize response missing payload"}
	}
	result := &AuthorizeResult{
		LoginID:  resp.Authorize.LoginID,
		Currency: resp.Authorize.Currency,
		Balance:  float64(resp.Authorize.Balance),
	}
	if c.emitter != nil {
		c.emitter.Emit(TopicAuthorize, result)
	}
	return result, nil
}

// Balance subscribes to balance updates.
func (c *WSClient) Balance(ctx context.Context) (*BalanceUpdate, error) {
	resp, err := c.call(ctx, &request{Balance: 1, Subscribe: 1})
	if err != nil {
		return nil, err
	}
	if resp.Balance == nil {
		return nil, &APIError{Code: CodeWrongResponse, Message: "balance response missing payload"}
	}
	return &BalanceUpdate{
		Balance:  float64(resp.Balance.Balance),
		Currency: resp.Balance.Currency,
	}, nil
}

// History fetches tick or candle history, optionally subscribing to the
// ongoing stream.
func (c *WSClient) History(ctx context.Context, symbol string, req HistoryRequest) (*HistoryResult, error) {
	wire := &request{
		TicksHistory: symbol,
		End:          req.End,
		Count:        req.Count,
		Granularity:  req.Granularity,
		Style:        req.Style,
	}
	if req.Subscribe {
		wire.Subscribe = 1
	}

	resp, err := c.call(ctx, wire)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{}
	switch {
	case resp.History != nil:
		if len(resp.History.Times) != len(resp.History.Prices) {
			return nil, &APIError{Code: CodeWrongResponse, Message: "history times/prices length mismatch"}
		}
		for i, epoch := range resp.History.Times {
			result.Ticks = append(result.Ticks, domain.Tick{
				Symbol: symbol,
				Epoch:  epoch,
				Quote:  float64(resp.History.Prices[i]),
			})
		}
	case resp.Candles != nil:
		for _, wc := range resp.Candles {
			result.Candles = append(result.Candles, domain.Candle{
				Symbol:   symbol,
				Epoch:    wc.Epoch,
				Open:     float64(wc.Open),
				High:     float64(wc.High),
				Low:      float64(wc.Low),
				Close:    float64(wc.Close),
				Interval: req.Granularity,
			})
		}
	default:
		return nil, &APIError{Code: CodeWrongResponse, Message: "history response missing payload"}
	}
	return result, nil
}

// SubscribeProposal requests a streamed price proposal.
func (c *WSClient) SubscribeProposal(ctx context.Context, req ProposalRequest) (*domain.Proposal, error) {
	resp, err := c.call(ctx, &request{
		Proposal:     1,
		Subscribe:    1,
		ContractType: req.ContractType,
		Symbol:       req.Symbol,
		Duration:     req.Duration,
		DurationUnit: req.DurationUnit,
		Basis:        req.Basis,
		Currency:     req.Currency,
		Amount:       req.Amount,
		Barrier:      req.Barrier,
		Barrier2:     req.Barrier2,
	})
	if err != nil {
		return nil, err
	}
	if resp.Proposal == nil {
		return nil, &APIError{Code: CodeGetProposalFailure, Message: "proposal response missing payload"}
	}
	return &domain.Proposal{
		ID:           resp.Proposal.ID,
		ContractType: req.ContractType,
		AskPrice:     float64(resp.Proposal.AskPrice),
		Payout:       float64(resp.Proposal.Payout),
		Spot:         float64(resp.Proposal.Spot),
		DateStart:    resp.Proposal.DateStart,
	}, nil
}

// Buy purchases the proposal at the quoted price.
func (c *WSClient) Buy(ctx context.Context, proposalID string, price float64) (*BuyResult, error) {
	resp, err := c.call(ctx, &request{Buy: proposalID, Price: price})
	if err != nil {
		return nil, err
	}
	if resp.Buy == nil {
		return nil, &APIError{Code: CodeWrongResponse, Message: "buy response missing payload"}
	}
	return &BuyResult{
		ContractID:    resp.Buy.ContractID,
		TransactionID: resp.Buy.TransactionID,
		BuyPrice:      float64(resp.Buy.BuyPrice),
		Payout:        float64(resp.Buy.Payout),
		StartTime:     resp.Buy.StartTime,
		LongCode:      resp.Buy.LongCode,
	}, nil
}

// Sell sells an open contract at market.
func (c *WSClient) Sell(ctx context.Context, contractID int64, price float64) (*SellResult, error) {
	resp, err := c.call(ctx, &request{Sell: contractID, Price: price})
	if err != nil {
		return nil, err
	}
	if resp.Sell == nil {
		return nil, &APIError{Code: CodeWrongResponse, Message: "sell response missing payload"}
	}
	return &SellResult{
		ContractID:    resp.Sell.ContractID,
		TransactionID: resp.Sell.TransactionID,
		SoldFor:       float64(resp.Sell.SoldFor),
	}, nil
}

// SubscribeOpenContract streams updates for a purchased contract.
func (c *WSClient) SubscribeOpenContract(ctx context.Context, contractID int64) error {
	resp, err := c.call(ctx, &request{
		ProposalOpenContract: 1,
		Subscribe:            1,
		ContractID:           contractID,
	})
	if err != nil {
		return err
	}
	// The initial snapshot goes through the same path as pushed updates
	// so the engine sees one uniform stream.
	if resp.ProposalOpenContract != nil && c.emitter != nil {
		c.emitter.Emit(TopicOpenContract, resp.ProposalOpenContract.toDomain())
	}
	return nil
}

// Forget cancels one subscription by id.
func (c *WSClient) Forget(ctx context.Context, id string) error {
	_, err := c.call(ctx, &request{Forget: id})
	return err
}

// ForgetAll cancels every subscription of the given stream types.
func (c *WSClient) ForgetAll(ctx context.Context, types ...string) error {
	for _, t := range types {
		if _, err := c.call(ctx, &request{ForgetAll: t}); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.failPending()
	c.wg.Wait()
	return nil
}

// failPending closes every waiter; callers see ErrDisconnected.
func (c *WSClient) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// readLoop reads messages and dispatches to waiters or the emitter.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// In-flight calls cannot be answered on a new connection;
			// the engine's retry layer re-issues them.
			c.failPending()

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect re-establishes the connection after a delay. Server-side
// subscriptions do not survive; callers re-subscribe through the retry
// layer.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Will retry on the next read error.
		return
	}
}

// handleMessage routes one message to its pending waiter, or decodes it
// as a push event.
func (c *WSClient) handleMessage(message []byte) {
	var resp response
	if err := json.Unmarshal(message, &resp); err != nil {
		log.Printf("[api] drop malformed message: %v", err)
		return
	}

	if resp.ReqID != 0 {
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ReqID]
		if ok {
			delete(c.pending, resp.ReqID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- &resp
			return
		}
	}

	c.dispatchPush(&resp)
}

// dispatchPush forwards a streamed update to the emitter.
func (c *WSClient) dispatchPush(resp *response) {
	if c.emitter == nil {
		return
	}

	switch resp.MsgType {
	case "tick":
		if resp.Tick != nil {
			c.emitter.Emit(TopicTick, domain.Tick{
				Symbol:  resp.Tick.Symbol,
				Epoch:   resp.Tick.Epoch,
				Quote:   float64(resp.Tick.Quote),
				PipSize: resp.Tick.PipSize,
			})
		}
	case "ohlc":
		if resp.OHLC != nil {
			epoch := resp.OHLC.OpenTime
			if epoch == 0 {
				epoch = resp.OHLC.Epoch
			}
			c.emitter.Emit(TopicOHLC, domain.Candle{
				Symbol:   resp.OHLC.Symbol,
				Epoch:    epoch,
				Open:     float64(resp.OHLC.Open),
				High:     float64(resp.OHLC.High),
				Low:      float64(resp.OHLC.Low),
				Close:    float64(resp.OHLC.Close),
				Interval: resp.OHLC.Granularity,
			})
		}
	case "proposal":
		if resp.Proposal != nil {
			c.emitter.Emit(TopicProposal, &domain.Proposal{
				ID:        resp.Proposal.ID,
				AskPrice:  float64(resp.Proposal.AskPrice),
				Payout:    float64(resp.Proposal.Payout),
				Spot:      float64(resp.Proposal.Spot),
				DateStart: resp.Proposal.DateStart,
			})
		}
	case "balance":
		if resp.Balance != nil {
			c.emitter.Emit(TopicBalance, BalanceUpdate{
				Balance:  float64(resp.Balance.Balance),
				Currency: resp.Balance.Currency,
			})
		}
	case "proposal_open_contract":
		if resp.ProposalOpenContract != nil {
			c.emitter.Emit(TopicOpenContract, resp.ProposalOpenContract.toDomain())
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader handles reconnect.
				}
			}
			c.connMu.Unlock()
		}
	}
}
