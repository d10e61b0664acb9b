package domain

// Limitations holds the session risk limits a strategy may configure.
// Limits are only enforced when both fields are set (non-zero).
type Limitations struct {
	MaxLoss   float64 // stop once sessionProfit <= -MaxLoss
	MaxTrades int     // stop once sessionRuns >= MaxTrades
}

// TradeOption describes what to trade. It is produced by the strategy
// script at start time and consumed to build proposal subscriptions.
type TradeOption struct {
	Symbol        string
	ContractTypes []string // e.g. CALL, PUT
	Duration      int
	DurationUnit  string // t, s, m, h, d
	Basis         string // stake or payout
	Currency      string
	Amount        float64

	// Optional barrier fields. A nil pointer means "not set"; zero is a
	// legal barrier value.
	Prediction          *float64
	BarrierOffset       *float64
	SecondBarrierOffset *float64

	// CandleGranularity selects the OHLC stream interval in seconds.
	CandleGranularity int

	// RestartOnError requests the session runner to restart the strategy
	// after a fatal engine error instead of halting.
	RestartOnError bool

	Limitations *Limitations
}

// EconomicallyEqual reports whether two trade options would produce the
// same proposal subscriptions. Only the fields that change the quote are
// compared; symbol changes are handled by the feed managers.
func (o *TradeOption) EconomicallyEqual(other *TradeOption) bool {
	if other == nil {
		return false
	}
	return o.Duration == other.Duration &&
		o.Amount == other.Amount &&
		floatPtrEqual(o.Prediction, other.Prediction) &&
		floatPtrEqual(o.BarrierOffset, other.BarrierOffset) &&
		floatPtrEqual(o.SecondBarrierOffset, other.SecondBarrierOffset)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float64Ptr is a convenience for building optional barrier fields.
func Float64Ptr(v float64) *float64 { return &v }
