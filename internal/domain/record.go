package domain

// TradeRecord is the finalized form of a settled contract, persisted by
// the engine on settlement.
type TradeRecord struct {
	TradeID      string // deterministic hash, see idhash
	ContractID   int64
	ContractType string
	Symbol       string
	Currency     string

	BuyPrice  float64
	SellPrice float64
	Payout    float64
	Profit    float64 // sell - buy, 2dp

	EntrySpot float64
	ExitSpot  float64

	DateStart int64
	DateSold  int64

	TransactionIDBuy  int64
	TransactionIDSell int64

	SessionRun int // 1-based run counter within the session
	TotalRun   int // lifetime run counter at settlement time
}

// Outcome class constants.
const (
	OutcomeWin  = "WIN"
	OutcomeLoss = "LOSS"
	OutcomeEven = "EVEN"
)

// OutcomeClass buckets a record by the sign of its profit.
func (r *TradeRecord) OutcomeClass() string {
	switch {
	case r.Profit > 0:
		return OutcomeWin
	case r.Profit < 0:
		return OutcomeLoss
	default:
		return OutcomeEven
	}
}
