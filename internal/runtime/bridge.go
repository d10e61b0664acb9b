// Package runtime is the bridge between the sandboxed strategy script
// and the trade engine. The script never touches the engine directly:
// it receives a typed capability table whose entries wrap the engine's
// operations plus sleep and the indicator functions.
package runtime

import (
	"context"
	"time"

	"binarybot/internal/domain"
	"binarybot/internal/engine"
	"binarybot/internal/indicators"
)

// Bridge adapts the engine for script consumption.
type Bridge struct {
	engine *engine.Engine

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Bridge over the engine.
func New(e *engine.Engine) *Bridge {
	return &Bridge{
		engine: e,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Capabilities is the table handed to the script interpreter. Every
// entry is a plain function so the interpreter can bind them without
// knowing engine types.
type Capabilities struct {
	Init            func(ctx context.Context, token string) error
	Start           func(ctx context.Context, opt *domain.TradeOption) error
	Purchase        func(ctx context.Context, contractType string) error
	Watch           func(ctx context.Context, scopeName string) (bool, error)
	IsInside        func(scopeName string) bool
	Stop            func()
	GetAskPrice     func(contractType string) (float64, error)
	GetPayout       func(contractType string) (float64, error)
	IsSellAvailable func() bool
	SellAtMarket    func(ctx context.Context) (float64, error)
	GetSellPrice    func() float64
	Sleep           func(ctx context.Context, seconds float64) error

	Balance    func() float64
	BalanceStr func() string
	Totals     func() domain.SessionTotals
	Direction  func() string
	PipSize    func() int

	Ticks     func() []float64
	Ohlc      func() []domain.Candle
	SMA       func(period int) float64
	EMA       func(period int) float64
	RSI       func(period int) float64
	SMASeries func(period int) []float64
	EMASeries func(period int) []float64
	RSISeries func(period int) []float64
	Bollinger func(period int, stdDevs float64) indicators.Bands
	MACD      func(fast, slow, signal int) indicators.MACDResult
}

// Table builds the capability table.
func (b *Bridge) Table() *Capabilities {
	return &Capabilities{
		Init:     b.engine.Init,
		Start:    b.engine.Start,
		Purchase: b.engine.Purchase,
		Watch:    b.engine.Watch,
		IsInside: b.engine.IsInside,
		Stop:     b.engine.Stop,

		GetAskPrice:     b.engine.GetAskPrice,
		GetPayout:       b.engine.GetPayout,
		IsSellAvailable: b.engine.IsSellAvailable,
		SellAtMarket:    b.SellAtMarket,
		GetSellPrice:    b.engine.GetSellPrice,
		Sleep:           b.Sleep,

		Balance:    b.engine.Balance,
		BalanceStr: b.engine.BalanceDisplay,
		Totals:     b.engine.Totals,
		Direction:  b.engine.Direction,
		PipSize:    b.engine.PipSize,

		Ticks: b.Quotes,
		Ohlc:  b.engine.Candles,
		SMA: func(period int) float64 {
			return indicators.Last(indicators.SMA(b.Quotes(), period))
		},
		EMA: func(period int) float64 {
			return indicators.Last(indicators.EMA(b.Quotes(), period))
		},
		RSI: func(period int) float64 {
			return indicators.Last(indicators.RSI(b.Quotes(), period))
		},
		SMASeries: func(period int) []float64 {
			return indicators.SMA(b.Quotes(), period)
		},
		EMASeries: func(period int) []float64 {
			return indicators.EMA(b.Quotes(), period)
		},
		RSISeries: func(period int) []float64 {
			return indicators.RSI(b.Quotes(), period)
		},
		Bollinger: func(period int, stdDevs float64) indicators.Bands {
			bands := indicators.Bollinger(b.Quotes(), period, stdDevs)
			if len(bands) == 0 {
				return indicators.Bands{}
			}
			return bands[len(bands)-1]
		},
		MACD: func(fast, slow, signal int) indicators.MACDResult {
			return indicators.MACD(b.Quotes(), fast, slow, signal)
		},
	}
}

// Quotes projects the tick window onto its quote values, oldest first.
func (b *Bridge) Quotes() []float64 {
	ticks := b.engine.Ticks()
	quotes := make([]float64, len(ticks))
	for i, t := range ticks {
		quotes[i] = t.Quote
	}
	return quotes
}

// Sleep suspends the script for a number of seconds. Fractional values
// are honored.
func (b *Bridge) Sleep(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	return b.sleep(ctx, time.Duration(seconds*float64(time.Second)))
}

// SellAtMarket sells the held contract and returns the sold-for price.
func (b *Bridge) SellAtMarket(ctx context.Context) (float64, error) {
	result, err := b.engine.SellAtMarket(ctx)
	if err != nil {
		return 0, err
	}
	return result.SoldFor, nil
}
