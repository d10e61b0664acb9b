package domain

// SessionTotals is the running P&L state. Lifetime counters survive
// "trade again" loops and session restarts; session counters reset when a
// new session begins.
type SessionTotals struct {
	TotalProfit float64
	TotalWins   int
	TotalLosses int
	TotalStake  float64
	TotalPayout float64
	TotalRuns   int

	SessionRuns   int
	SessionProfit float64
}
