package domain

// Tick is a single spot quote for a symbol.
type Tick struct {
	Symbol  string
	Epoch   int64
	Quote   float64
	PipSize int
}

// Candle is one OHLC bar. Epoch identifies the bar: a repeated epoch means
// the same bar is still forming and replaces the previous value.
type Candle struct {
	Symbol   string
	Epoch    int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Interval int // seconds
}

// Direction labels for tick movement.
const (
	DirectionRise = "rise"
	DirectionFall = "fall"
	DirectionNone = ""
)

// TickDirection compares the last two quotes of a window.
// Fewer than two ticks, or an unchanged quote, yields DirectionNone.
func TickDirection(ticks []Tick) string {
	if len(ticks) < 2 {
		return DirectionNone
	}
	prev, last := ticks[len(ticks)-2].Quote, ticks[len(ticks)-1].Quote
	switch {
	case last > prev:
		return DirectionRise
	case last < prev:
		return DirectionFall
	default:
		return DirectionNone
	}
}
