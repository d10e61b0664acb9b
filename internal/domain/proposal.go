package domain

// Proposal is a live price quote for one contract type, tied to a
// server-side subscription id. At most one non-stale proposal exists per
// contract type at any time.
type Proposal struct {
	ID           string
	ContractType string
	AskPrice     float64
	Payout       float64
	Spot         float64
	DateStart    int64
}

// OpenContract is a purchased, still-settling contract receiving streamed
// updates until is_sold is reported together with a final sell price.
type OpenContract struct {
	ContractID   int64
	ContractType string
	Underlying   string
	BuyPrice     float64
	BidPrice     float64
	Payout       float64

	// SellPrice is nil until the server reports a final price. A sold
	// losing contract carries an explicit zero, not nil.
	SellPrice *float64

	EntrySpot float64
	ExitSpot  float64

	DateStart  int64
	DateExpiry int64
	DateSold   int64

	TransactionIDBuy  int64
	TransactionIDSell int64

	IsExpired     bool
	IsSold        bool
	IsValidToSell bool

	Status string
}

// Settled reports whether the contract has reached its terminal state:
// sold with a final sell price on the wire.
func (c *OpenContract) Settled() bool {
	return c.IsSold && c.SellPrice != nil
}
