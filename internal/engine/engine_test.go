package engine

import (
	"context"
	"errors"
	"testing"

	"binarybot/internal/api"
	"binarybot/internal/api/stub"
	"binarybot/internal/domain"
	"binarybot/internal/events"
	"binarybot/internal/storage/memory"
)

type testEnv struct {
	client   *stub.Client
	observer *events.Observer
	engine   *Engine
	records  *memory.TradeRecordStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	observer := events.New()
	client := stub.New(observer)
	records := memory.NewTradeRecordStore()
	eng := New(client, observer, Options{
		Symbol:  "R_100",
		Records: records,
		Totals:  memory.NewTotalsStore(),
		Retry:   fastPolicy(),
	})
	return &testEnv{client: client, observer: observer, engine: eng, records: records}
}

func (env *testEnv) initAndStart(t *testing.T, opt *domain.TradeOption) {
	t.Helper()
	ctx := context.Background()
	if err := env.engine.Init(ctx, "test-token"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := env.engine.Start(ctx, opt); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// settledUpdate mirrors what the open-contract stream delivers when the
// contract expires.
func settledUpdate(id int64, buy, sell float64) *domain.OpenContract {
	return &domain.OpenContract{
		ContractID:        id,
		ContractType:      "CALL",
		BuyPrice:          buy,
		SellPrice:         &sell,
		Payout:            1.95,
		IsSold:            true,
		IsExpired:         true,
		DateSold:          2005,
		TransactionIDBuy:  id * 10,
		TransactionIDSell: id*10 + 1,
		Status:            "won",
	}
}

func TestEngine_InitAuthorizesOncePerToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.Init(ctx, "token-a"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := env.engine.Init(ctx, "token-a"); err != nil {
		t.Fatalf("re-init: %v", err)
	}

	if got := countPrefix(env.client.Calls(), "authorize"); got != 1 {
		t.Errorf("authorize calls = %d, want 1 for a repeated token", got)
	}

	if err := env.engine.Init(ctx, "token-b"); err != nil {
		t.Fatalf("init with new token: %v", err)
	}
	if got := countPrefix(env.client.Calls(), "authorize"); got != 2 {
		t.Errorf("authorize calls = %d, want 2 after token change", got)
	}
}

func TestEngine_InitRecoversFromTransientDisconnects(t *testing.T) {
	env := newTestEnv(t)
	env.client.QueueAuthorizeErrors(api.ErrDisconnected, api.ErrDisconnected, api.ErrDisconnected)

	if err := env.engine.Init(context.Background(), "test-token"); err != nil {
		t.Fatalf("init must survive transient disconnects: %v", err)
	}
	if got := countPrefix(env.client.Calls(), "authorize"); got != 4 {
		t.Errorf("authorize calls = %d, want 4", got)
	}
}

func TestEngine_InitFatalAuthorizeError(t *testing.T) {
	env := newTestEnv(t)
	env.client.QueueAuthorizeErrors(&api.APIError{Code: api.CodeInvalidToken, Message: "invalid"})

	err := env.engine.Init(context.Background(), "bad-token")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != api.CodeInvalidToken {
		t.Errorf("err = %v, want the InvalidToken APIError", err)
	}
	if got := countPrefix(env.client.Calls(), "authorize"); got != 1 {
		t.Errorf("authorize calls = %d, fatal errors must not be retried", got)
	}
}

func TestEngine_StartBeforeInit(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Start(context.Background(), twoTypeOption()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestEngine_StartArmsBeforeScope(t *testing.T) {
	env := newTestEnv(t)
	env.initAndStart(t, twoTypeOption())

	inside, err := env.engine.Watch(context.Background(), "before")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !inside {
		t.Error("before scope must be armed after a successful start")
	}

	if ask, err := env.engine.GetAskPrice("CALL"); err != nil || ask != 1.0 {
		t.Errorf("ask = (%v, %v), want (1.0, nil)", ask, err)
	}
	if payout, err := env.engine.GetPayout("PUT"); err != nil || payout != 1.95 {
		t.Errorf("payout = (%v, %v), want (1.95, nil)", payout, err)
	}
	if _, err := env.engine.GetAskPrice("DIGITEVEN"); !errors.Is(err, ErrNoProposal) {
		t.Errorf("unknown contract type err = %v, want ErrNoProposal", err)
	}
}

func TestEngine_RepeatStartKeepsSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	env.initAndStart(t, twoTypeOption())

	// The strategy loop calls Start once per cycle with the same trade
	// definition; the quote subscriptions must not churn.
	if err := env.engine.Start(context.Background(), twoTypeOption()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if got := countPrefix(env.client.Calls(), "proposal:"); got != 2 {
		t.Errorf("proposal subscriptions = %d, want 2", got)
	}
	if inside, _ := env.engine.Watch(context.Background(), "before"); !inside {
		t.Error("before scope must re-arm on every start")
	}
}

func TestEngine_FullPurchaseCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var finishes []SettlementInfo
	env.observer.Register(TopicFinish, func(payload any) {
		if info, ok := payload.(SettlementInfo); ok {
			finishes = append(finishes, info)
		}
	})

	env.initAndStart(t, twoTypeOption())

	if inside, _ := env.engine.Watch(ctx, "before"); !inside {
		t.Fatal("before scope not armed")
	}

	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// First stream update: contract open, not yet settled.
	env.client.Push(api.TopicOpenContract, &domain.OpenContract{
		ContractID:    1001,
		ContractType:  "CALL",
		BuyPrice:      1.0,
		BidPrice:      1.2,
		IsValidToSell: true,
	})
	if inside, _ := env.engine.Watch(ctx, "during"); !inside {
		t.Fatal("during scope not armed by the open contract update")
	}
	if !env.engine.IsSellAvailable() {
		t.Error("sell must be available for a valid open contract")
	}
	if got := env.engine.GetSellPrice(); got != 0.2 {
		t.Errorf("sell price = %v, want 0.2", got)
	}

	// Settlement.
	env.client.Push(api.TopicOpenContract, settledUpdate(1001, 1.0, 1.95))

	if inside, _ := env.engine.Watch(ctx, "during"); inside {
		t.Error("during watch must resolve false once the contract settles")
	}
	if !env.engine.IsInside("after") {
		t.Error("engine must be in the after scope")
	}

	totals := env.engine.Totals()
	if totals.TotalProfit != 0.95 || totals.TotalWins != 1 || totals.SessionRuns != 1 {
		t.Errorf("totals = %+v", totals)
	}

	if len(finishes) != 1 {
		t.Fatalf("finish events = %d, want 1", len(finishes))
	}
	if finishes[0].Profit != 0.95 {
		t.Errorf("finish profit = %v, want 0.95", finishes[0].Profit)
	}
	if finishes[0].Totals.TotalProfit != 0.95 {
		t.Error("finish event must carry the committed totals")
	}

	records, err := env.records.GetBySymbol(ctx, "R_100")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Profit != 0.95 || records[0].ContractID != 1001 {
		t.Errorf("record = %+v", records[0])
	}
}

func TestEngine_DuplicatePurchaseIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.initAndStart(t, twoTypeOption())

	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Errorf("duplicate purchase = %v, want nil", err)
	}
	if got := countPrefix(env.client.Calls(), "buy:"); got != 1 {
		t.Errorf("buy calls = %d, want 1", got)
	}
}

func TestEngine_DuplicateSettlementCommitsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.initAndStart(t, twoTypeOption())

	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	env.client.Push(api.TopicOpenContract, settledUpdate(1001, 1.0, 1.95))
	env.client.Push(api.TopicOpenContract, settledUpdate(1001, 1.0, 1.95))

	totals := env.engine.Totals()
	if totals.TotalProfit != 0.95 || totals.TotalWins != 1 {
		t.Errorf("duplicate settlement mutated totals: %+v", totals)
	}
}

func TestEngine_StartEnforcesLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.engine.Init(ctx, "test-token"); err != nil {
		t.Fatalf("init: %v", err)
	}

	var limitEvents int
	env.observer.Register(TopicLimitsReached, func(any) { limitEvents++ })

	opt := twoTypeOption()
	opt.Limitations = &domain.Limitations{MaxLoss: 10, MaxTrades: 2}
	env.engine.totals.IncrementRuns()
	env.engine.totals.IncrementRuns()

	var limits *LimitsError
	err := env.engine.Start(ctx, opt)
	if !errors.As(err, &limits) {
		t.Fatalf("err = %v, want LimitsError", err)
	}
	if limits.Reason != "maxTrades" {
		t.Errorf("reason = %q, want maxTrades", limits.Reason)
	}
	if limitEvents != 1 {
		t.Errorf("limit events = %d, want 1", limitEvents)
	}
	if got := countPrefix(env.client.Calls(), "proposal:"); got != 0 {
		t.Errorf("proposal subscriptions = %d, limits must stop the cycle first", got)
	}
}

func TestEngine_StopDropsLateSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.initAndStart(t, twoTypeOption())

	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	env.engine.Stop()

	// A settlement arriving after stop belongs to a dropped cycle.
	env.client.Push(api.TopicOpenContract, settledUpdate(1001, 1.0, 1.95))

	totals := env.engine.Totals()
	if totals.TotalProfit != 0 || totals.TotalWins != 0 {
		t.Errorf("late settlement mutated totals: %+v", totals)
	}
	if totals.SessionRuns != 0 {
		t.Errorf("session runs = %d, want 0 after stop", totals.SessionRuns)
	}

	if inside, _ := env.engine.Watch(ctx, "before"); inside {
		t.Error("watch after stop must resolve false")
	}
}

func TestEngine_StopUnsubscribesProposals(t *testing.T) {
	env := newTestEnv(t)
	env.initAndStart(t, twoTypeOption())

	var stopped bool
	env.observer.Register(TopicStop, func(any) { stopped = true })

	env.engine.Stop()

	if got := len(env.client.ForgottenIDs()); got != 2 {
		t.Errorf("forgot %d proposal subscriptions, want 2", got)
	}
	if !stopped {
		t.Error("stop event not emitted")
	}
}

func TestEngine_SellAtMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.initAndStart(t, twoTypeOption())

	if _, err := env.engine.SellAtMarket(ctx); !errors.Is(err, ErrSellUnavailable) {
		t.Errorf("sell before purchase = %v, want ErrSellUnavailable", err)
	}

	if err := env.engine.Purchase(ctx, "CALL"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	env.client.Push(api.TopicOpenContract, &domain.OpenContract{
		ContractID:    1001,
		ContractType:  "CALL",
		BuyPrice:      1.0,
		BidPrice:      1.2,
		IsValidToSell: true,
	})

	result, err := env.engine.SellAtMarket(ctx)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if result.ContractID != 1001 {
		t.Errorf("sold contract %d, want 1001", result.ContractID)
	}
}

func TestEngine_TickTelemetry(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Init(context.Background(), "test-token"); err != nil {
		t.Fatalf("init: %v", err)
	}

	var infos []TickInfo
	env.observer.Register(TopicTickUpdate, func(payload any) {
		if info, ok := payload.(TickInfo); ok {
			infos = append(infos, info)
		}
	})

	env.client.Push(api.TopicTick, domain.Tick{Symbol: "R_100", Epoch: 2000, Quote: 103, PipSize: 2})

	if len(infos) != 1 {
		t.Fatalf("tick updates = %d, want 1", len(infos))
	}
	if infos[0].Direction != domain.DirectionRise {
		t.Errorf("direction = %q, want rise", infos[0].Direction)
	}
	// 3 history ticks plus the pushed one.
	if got := len(infos[0].Ticks); got != 4 {
		t.Errorf("window = %d ticks, want 4", got)
	}
}
