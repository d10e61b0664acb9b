// Package engine implements the trade-execution core: it coordinates
// price proposals, balance and market feeds, contract purchase and
// settlement against a single stateful remote connection, enforcing
// session risk limits and the before/during/after scope transitions the
// strategy script suspends on.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
	"binarybot/internal/events"
	"binarybot/internal/observability"
	"binarybot/internal/storage"
)

// Telemetry topics. These are the sole channel by which the dashboard
// layer observes engine state.
const (
	TopicStart         = "bot.start"
	TopicLogin         = "bot.login"
	TopicProposal      = "bot.proposal"
	TopicPurchase      = "bot.purchase"
	TopicTickUpdate    = "bot.tickUpdate"
	TopicTradeInfo     = "bot.tradeInfo"
	TopicTradeUpdate   = "bot.tradeUpdate"
	TopicFinish        = "bot.finish"
	TopicStop          = "bot.stop"
	TopicLimitsReached = "bot.limitsReached"
	TopicError         = "bot.error"
)

// TickInfo is the payload of TopicTickUpdate.
type TickInfo struct {
	Symbol    string
	Direction string
	PipSize   int
	Ticks     []domain.Tick
	Candles   []domain.Candle
}

// Options configures an Engine.
type Options struct {
	// Symbol is the default market; a TradeOption may override it.
	Symbol string
	// CandleGranularity is the OHLC interval in seconds (default 60).
	CandleGranularity int
	// TickWindow caps the rolling tick/candle windows.
	TickWindow int

	// Records receives finalized trades on settlement. Optional.
	Records storage.TradeRecordStore
	// Totals persists lifetime totals across restarts. Optional.
	Totals storage.TotalsStore
	// Archive receives the normalized tick/candle streams. Optional.
	Archive storage.TickArchive
	// Metrics receives engine telemetry. Optional.
	Metrics *observability.Metrics

	Retry   RetryPolicy
	Verbose bool
}

// Engine is the orchestrator. It owns its delegates exclusively; they
// have no independent lifetime.
type Engine struct {
	client   api.Client
	observer *events.Observer
	retrier  *Retrier

	totals    *Tracker
	scopes    *scopeMachine
	proposals *proposalManager
	balance   *balanceFeed
	ticks     *tickFeed
	candles   *candleFeed

	opts    Options
	metrics *observability.Metrics

	mu          sync.Mutex
	initialized bool
	token       string
	account     string
	currency    string
	tradeOption *domain.TradeOption
	purchase    *purchaseController
	cycleSeq    int
	observing   bool
}

// New creates an Engine on the given client and registry.
func New(client api.Client, observer *events.Observer, opts Options) *Engine {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.CandleGranularity == 0 {
		opts.CandleGranularity = 60
	}

	retrier := NewRetrier(opts.Retry)
	if opts.Metrics != nil {
		retrier.onRetry = func(error) { opts.Metrics.RetriesTotal.Inc() }
	}

	e := &Engine{
		client:   client,
		observer: observer,
		retrier:  retrier,
		scopes:   newScopeMachine(),
		opts:     opts,
		metrics:  opts.Metrics,
	}
	e.proposals = newProposalManager(client, retrier)
	e.proposals.onUpdate = func(p *domain.Proposal) {
		if e.metrics != nil {
			e.metrics.ProposalsUpdated.Inc()
		}
		e.observer.Emit(TopicProposal, p)
	}
	e.balance = newBalanceFeed(client, retrier)
	e.balance.onUpdate = func(balance float64, display string) {
		if e.metrics != nil {
			e.metrics.BalanceUpdates.Inc()
		}
		e.observer.Emit(TopicTradeInfo, map[string]any{"balance": display})
	}
	e.ticks = newTickFeed(client, retrier, opts.TickWindow, opts.Archive)
	e.ticks.onTick = func(ticks []domain.Tick, direction string) {
		if e.metrics != nil {
			e.metrics.TicksReceived.Inc()
		}
		e.observer.Emit(TopicTickUpdate, TickInfo{
			Symbol:    e.ticks.Symbol(),
			Direction: direction,
			PipSize:   e.ticks.PipSize(),
			Ticks:     ticks,
			Candles:   e.candles.Window(),
		})
	}
	e.candles = newCandleFeed(client, retrier, opts.TickWindow, opts.Archive)

	return e
}

// Observer exposes the registry so the UI layer can subscribe to
// telemetry topics.
func (e *Engine) Observer() *events.Observer { return e.observer }

// observe installs the persistent push handlers. Called once.
func (e *Engine) observe() {
	e.mu.Lock()
	if e.observing {
		e.mu.Unlock()
		return
	}
	e.observing = true
	e.mu.Unlock()

	e.observer.Register(api.TopicTick, func(payload any) {
		if tick, ok := payload.(domain.Tick); ok {
			e.ticks.Handle(tick)
		}
	})
	e.observer.Register(api.TopicOHLC, func(payload any) {
		if candle, ok := payload.(domain.Candle); ok {
			if e.metrics != nil {
				e.metrics.CandlesReceived.Inc()
			}
			e.candles.Handle(candle)
		}
	})
	e.observer.Register(api.TopicBalance, func(payload any) {
		if update, ok := payload.(api.BalanceUpdate); ok {
			e.balance.Handle(update)
		}
	})
	e.observer.Register(api.TopicProposal, func(payload any) {
		if proposal, ok := payload.(*domain.Proposal); ok {
			e.proposals.HandleUpdate(proposal)
		}
	})
}

// Init authorizes the session token and starts the balance, tick and
// candle subscriptions for the configured symbol. It resolves once the
// balance subscription is active. Re-initializing with the same token
// skips the authorize round trip.
func (e *Engine) Init(ctx context.Context, token string) error {
	e.observe()

	e.mu.Lock()
	sameToken := token == e.token && e.initialized
	e.mu.Unlock()

	if !sameToken {
		var auth *api.AuthorizeResult
		err := e.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			auth, err = e.client.Authorize(ctx, token)
			return err
		})
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}

		e.mu.Lock()
		e.token = token
		e.account = auth.LoginID
		e.currency = auth.Currency
		e.mu.Unlock()

		e.totals = NewTracker(e.opts.Totals, auth.LoginID)
		if err := e.totals.Restore(ctx); err != nil {
			log.Printf("[engine] totals restore failed: %v", err)
		}

		e.observer.Emit(TopicLogin, map[string]any{"loginid": auth.LoginID})
	}

	if e.opts.Symbol != "" {
		if err := e.ticks.Subscribe(ctx, e.opts.Symbol); err != nil {
			return fmt.Errorf("tick subscription: %w", err)
		}
		if err := e.candles.Subscribe(ctx, e.opts.Symbol, e.opts.CandleGranularity); err != nil {
			return fmt.Errorf("candle subscription: %w", err)
		}
	}

	if err := e.balance.Subscribe(ctx); err != nil {
		return fmt.Errorf("balance subscription: %w", err)
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

// Start begins a purchase cycle for the trade option: it checks the
// session risk limits, points the feeds at the option's symbol, issues
// the proposal subscriptions and arms the before scope.
func (e *Engine) Start(ctx context.Context, opt *domain.TradeOption) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if opt.Symbol == "" {
		opt.Symbol = e.opts.Symbol
	}
	if opt.Currency == "" {
		opt.Currency = e.currency
	}
	if opt.Basis == "" {
		opt.Basis = "stake"
	}
	e.tradeOption = opt
	account, currency := e.account, e.currency
	e.mu.Unlock()

	e.scopes.reset()

	if err := e.totals.CheckLimits(opt); err != nil {
		if e.metrics != nil {
			e.metrics.LimitsHit.Inc()
		}
		e.observer.Emit(TopicLimitsReached, err.Error())
		return err
	}

	e.observer.Emit(TopicStart, map[string]any{"symbol": opt.Symbol})

	if err := e.ticks.Subscribe(ctx, opt.Symbol); err != nil {
		return fmt.Errorf("tick subscription: %w", err)
	}
	granularity := opt.CandleGranularity
	if granularity == 0 {
		granularity = e.opts.CandleGranularity
	}
	if err := e.candles.Subscribe(ctx, opt.Symbol, granularity); err != nil {
		return fmt.Errorf("candle subscription: %w", err)
	}

	// Fresh cycle: the previous controller, if any, is done. Its group
	// handlers were dropped on settlement or stop.
	e.mu.Lock()
	e.cycleSeq++
	group := fmt.Sprintf("cycle-%d", e.cycleSeq)
	ctrl := &purchaseController{
		client:    e.client,
		retrier:   e.retrier,
		totals:    e.totals,
		proposals: e.proposals,
		scopes:    e.scopes,
		records:   e.opts.Records,
		account:   account,
		symbol:    opt.Symbol,
		currency:  currency,
		emit:      e.emitWithMetrics,
		unregisterCycle: func() {
			e.observer.UnregisterGroup(group)
		},
	}
	e.purchase = ctrl
	e.mu.Unlock()

	e.observer.Register(api.TopicOpenContract, func(payload any) {
		if contract, ok := payload.(*domain.OpenContract); ok {
			ctrl.HandleContract(contract)
		}
	}, events.Group(group))

	ctrl.markProposalsPending()
	if e.metrics != nil {
		e.metrics.ProposalRounds.Inc()
	}
	if err := e.proposals.Request(ctx, opt); err != nil {
		if e.metrics != nil {
			e.metrics.ErrorsTotal.WithLabelValues("proposal").Inc()
		}
		e.observer.Emit(TopicError, err)
		return err
	}

	if e.proposals.Ready() {
		ctrl.markReady()
		e.scopes.enter(ScopeBefore)
	}
	return nil
}

// emitWithMetrics forwards telemetry and mirrors the interesting events
// into prometheus.
func (e *Engine) emitWithMetrics(topic string, payload any) {
	if e.metrics != nil {
		switch topic {
		case TopicPurchase:
			if info, ok := payload.(PurchaseInfo); ok {
				e.metrics.PurchasesTotal.WithLabelValues(info.ContractType).Inc()
			}
		case TopicFinish:
			if info, ok := payload.(SettlementInfo); ok {
				outcome := domain.OutcomeEven
				if info.Profit > 0 {
					outcome = domain.OutcomeWin
				} else if info.Profit < 0 {
					outcome = domain.OutcomeLoss
				}
				e.metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
				e.metrics.SessionProfit.Set(info.Totals.SessionProfit)
				e.metrics.LifetimeProfit.Set(info.Totals.TotalProfit)
			}
		}
	}
	e.observer.Emit(topic, payload)
}

// Purchase buys the ready proposal for contractType. Duplicate calls in
// one cycle are no-ops.
func (e *Engine) Purchase(ctx context.Context, contractType string) error {
	e.mu.Lock()
	ctrl := e.purchase
	e.mu.Unlock()
	if ctrl == nil {
		return ErrNotInitialized
	}
	_, err := ctrl.Purchase(ctx, contractType)
	if err == ErrAlreadyPurchased {
		return nil
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.ErrorsTotal.WithLabelValues("purchase").Inc()
		}
		e.observer.Emit(TopicError, err)
	}
	return err
}

// Watch suspends until the named scope resolves: true on entry into the
// scope, false once the engine moves past it or stops.
func (e *Engine) Watch(ctx context.Context, scopeName string) (bool, error) {
	return e.scopes.watch(ctx, scopeName)
}

// IsInside reports whether the engine is currently in the named scope.
func (e *Engine) IsInside(scopeName string) bool {
	return e.scopes.isInside(Scope(scopeName))
}

// Stop tears the session down: cycle handlers are unregistered so
// in-flight responses are dropped, proposal subscriptions are forgotten
// best-effort and any suspended Watch resolves false.
func (e *Engine) Stop() {
	e.mu.Lock()
	ctrl := e.purchase
	e.purchase = nil
	seq := e.cycleSeq
	e.mu.Unlock()

	if ctrl != nil {
		e.observer.UnregisterGroup(fmt.Sprintf("cycle-%d", seq))
	}
	e.proposals.UnsubscribeAll(context.Background())
	if e.totals != nil {
		e.totals.ResetSession()
	}
	e.balance.reset()
	e.scopes.stop()
	e.observer.Emit(TopicStop, nil)
}

// GetAskPrice returns the current ask price quoted for contractType.
func (e *Engine) GetAskPrice(contractType string) (float64, error) {
	proposal, ok := e.proposals.Get(contractType)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoProposal, contractType)
	}
	return proposal.AskPrice, nil
}

// GetPayout returns the current payout quoted for contractType.
func (e *Engine) GetPayout(contractType string) (float64, error) {
	proposal, ok := e.proposals.Get(contractType)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoProposal, contractType)
	}
	return proposal.Payout, nil
}

// IsSellAvailable reports whether the held contract can be sold back.
func (e *Engine) IsSellAvailable() bool {
	e.mu.Lock()
	ctrl := e.purchase
	e.mu.Unlock()
	return ctrl != nil && ctrl.IsSellAvailable()
}

// SellAtMarket sells the held contract at the current market price.
func (e *Engine) SellAtMarket(ctx context.Context) (*api.SellResult, error) {
	e.mu.Lock()
	ctrl := e.purchase
	e.mu.Unlock()
	if ctrl == nil {
		return nil, ErrSellUnavailable
	}
	return ctrl.SellAtMarket(ctx)
}

// GetSellPrice returns bid − buy for the held contract, rounded to 2dp.
func (e *Engine) GetSellPrice() float64 {
	e.mu.Lock()
	ctrl := e.purchase
	e.mu.Unlock()
	if ctrl == nil {
		return 0
	}
	contract := ctrl.Contract()
	if contract == nil {
		return 0
	}
	return roundFixed(contract.BidPrice - contract.BuyPrice)
}

// Contract returns the latest open-contract snapshot, or nil.
func (e *Engine) Contract() *domain.OpenContract {
	e.mu.Lock()
	ctrl := e.purchase
	e.mu.Unlock()
	if ctrl == nil {
		return nil
	}
	return ctrl.Contract()
}

// Balance returns the raw numeric account balance.
func (e *Engine) Balance() float64 { return e.balance.Balance() }

// BalanceDisplay returns the formatted balance string.
func (e *Engine) BalanceDisplay() string { return e.balance.Display() }

// Totals returns a snapshot of the running totals.
func (e *Engine) Totals() domain.SessionTotals {
	if e.totals == nil {
		return domain.SessionTotals{}
	}
	return e.totals.Snapshot()
}

// Ticks returns a copy of the rolling tick window.
func (e *Engine) Ticks() []domain.Tick { return e.ticks.Window() }

// Candles returns a copy of the rolling candle window.
func (e *Engine) Candles() []domain.Candle { return e.candles.Window() }

// Direction compares the last two tick quotes.
func (e *Engine) Direction() string { return e.ticks.Direction() }

// PipSize returns the active symbol's pip size.
func (e *Engine) PipSize() int { return e.ticks.PipSize() }

// RestartOnError reports whether the current trade option asked the
// session runner to restart after fatal errors.
func (e *Engine) RestartOnError() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradeOption != nil && e.tradeOption.RestartOnError
}
