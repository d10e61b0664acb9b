// Package indicators provides the technical analysis primitives exposed
// to strategy scripts: moving averages, RSI, Bollinger bands and MACD.
// All functions operate on a price series in chronological order and
// return series aligned to the input; positions without enough history
// hold NaN.
package indicators

import "math"

// SMA computes the simple moving average over period.
func SMA(prices []float64, period int) []float64 {
	n := len(prices)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}

	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average over period. The series is
// seeded with the SMA of the first period values.
func EMA(prices []float64, period int) []float64 {
	n := len(prices)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}

	seed := 0.0
	for _, p := range prices[:period] {
		seed += p
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		out[i] = prices[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the relative strength index over period using Wilder's
// smoothing. Values range 0..100; a flat series with no losses yields 100.
func RSI(prices []float64, period int) []float64 {
	n := len(prices)
	out := nanSeries(n)
	if period <= 0 || n <= period {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bands holds one Bollinger band triple.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes Bollinger bands: an SMA middle band with upper and
// lower bands stdDevs population standard deviations away.
func Bollinger(prices []float64, period int, stdDevs float64) []Bands {
	n := len(prices)
	out := make([]Bands, n)
	for i := range out {
		out[i] = Bands{Upper: math.NaN(), Middle: math.NaN(), Lower: math.NaN()}
	}
	if period <= 0 || n < period {
		return out
	}

	middle := SMA(prices, period)
	for i := period - 1; i < n; i++ {
		window := prices[i-period+1 : i+1]
		sumSq := 0.0
		for _, p := range window {
			diff := p - middle[i]
			sumSq += diff * diff
		}
		sd := math.Sqrt(sumSq / float64(period))
		out[i] = Bands{
			Upper:  middle[i] + stdDevs*sd,
			Middle: middle[i],
			Lower:  middle[i] - stdDevs*sd,
		}
	}
	return out
}

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD(fast, slow, signal): the difference of the fast and
// slow EMAs, an EMA of that difference, and their gap.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	n := len(prices)
	result := MACDResult{
		MACD:      nanSeries(n),
		Signal:    nanSeries(n),
		Histogram: nanSeries(n),
	}
	if fast <= 0 || slow <= fast || n < slow {
		return result
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)
	for i := slow - 1; i < n; i++ {
		result.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is an EMA over the defined MACD values.
	macdValues := result.MACD[slow-1:]
	signalValues := EMA(macdValues, signal)
	for i, v := range signalValues {
		result.Signal[slow-1+i] = v
		if !math.IsNaN(v) {
			result.Histogram[slow-1+i] = macdValues[i] - v
		}
	}
	return result
}

// Last returns the newest defined value of a series, or NaN when none is.
func Last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
