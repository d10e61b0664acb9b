package api

import (
	"encoding/json"
	"strconv"

	"binarybot/internal/domain"
)

// Push topics delivered through the Emitter. Engine components register
// handlers on these with the events registry.
const (
	TopicTick         = "api.tick"
	TopicOHLC         = "api.ohlc"
	TopicProposal     = "api.proposal"
	TopicBalance      = "api.balance"
	TopicOpenContract = "api.proposal_open_contract"
	TopicAuthorize    = "api.authorize"
)

// Emitter receives push events decoded from the stream. Satisfied by
// *events.Observer.
type Emitter interface {
	Emit(topic string, payload any)
}

// AuthorizeResult is the response to an authorize call.
type AuthorizeResult struct {
	LoginID  string
	Currency string
	Balance  float64
}

// BalanceUpdate is the initial balance response and every pushed update.
type BalanceUpdate struct {
	Balance  float64
	Currency string
}

// HistoryRequest configures a ticks_history call.
type HistoryRequest struct {
	End         string // "latest"
	Count       int
	Granularity int    // seconds; candles only
	Style       string // "ticks" or "candles"
	Subscribe   bool
}

// HistoryResult is the initial batch; subsequent points stream as
// TopicTick / TopicOHLC pushes.
type HistoryResult struct {
	Ticks   []domain.Tick
	Candles []domain.Candle
}

// ProposalRequest is a price subscription request for one contract type.
type ProposalRequest struct {
	ContractType string
	Symbol       string
	Duration     int
	DurationUnit string
	Basis        string
	Currency     string
	Amount       string // 2dp-formatted stake
	Barrier      string
	Barrier2     string
}

// BuyResult is the response to a buy call.
type BuyResult struct {
	ContractID    int64
	TransactionID int64
	BuyPrice      float64
	Payout        float64
	StartTime     int64
	LongCode      string
}

// SellResult is the response to a sell call.
type SellResult struct {
	ContractID    int64
	TransactionID int64
	SoldFor       float64
}

// wire types

type request struct {
	ReqID int64 `json:"req_id"`

	Authorize string `json:"authorize,omitempty"`

	Balance   int `json:"balance,omitempty"`
	Subscribe int `json:"subscribe,omitempty"`

	TicksHistory string `json:"ticks_history,omitempty"`
	End          string `json:"end,omitempty"`
	Count        int    `json:"count,omitempty"`
	Granularity  int    `json:"granularity,omitempty"`
	Style        string `json:"style,omitempty"`

	Proposal     int    `json:"proposal,omitempty"`
	ContractType string `json:"contract_type,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	DurationUnit string `json:"duration_unit,omitempty"`
	Basis        string `json:"basis,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Barrier      string `json:"barrier,omitempty"`
	Barrier2     string `json:"barrier2,omitempty"`

	Buy   string  `json:"buy,omitempty"`
	Sell  int64   `json:"sell,omitempty"`
	Price float64 `json:"price,omitempty"`

	ProposalOpenContract int   `json:"proposal_open_contract,omitempty"`
	ContractID           int64 `json:"contract_id,omitempty"`

	Forget    string `json:"forget,omitempty"`
	ForgetAll string `json:"forget_all,omitempty"`
}

type response struct {
	ReqID   int64  `json:"req_id"`
	MsgType string `json:"msg_type"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`

	Authorize *struct {
		LoginID  string     `json:"loginid"`
		Currency string     `json:"currency"`
		Balance  jsonNumber `json:"balance"`
	} `json:"authorize"`

	Balance *struct {
		Balance  jsonNumber `json:"balance"`
		Currency string     `json:"currency"`
	} `json:"balance"`

	History *struct {
		Times  []int64      `json:"times"`
		Prices []jsonNumber `json:"prices"`
	} `json:"history"`

	Candles []wireCandle `json:"candles"`

	Tick *wireTick `json:"tick"`
	OHLC *wireOHLC `json:"ohlc"`

	Proposal *wireProposal `json:"proposal"`

	Buy *struct {
		ContractID    int64      `json:"contract_id"`
		TransactionID int64      `json:"transaction_id"`
		BuyPrice      jsonNumber `json:"buy_price"`
		Payout        jsonNumber `json:"payout"`
		StartTime     int64      `json:"start_time"`
		LongCode      string     `json:"longcode"`
	} `json:"buy"`

	Sell *struct {
		ContractID    int64      `json:"contract_id"`
		TransactionID int64      `json:"transaction_id"`
		SoldFor       jsonNumber `json:"sold_for"`
	} `json:"sell"`

	ProposalOpenContract *wireOpenContract `json:"proposal_open_contract"`

	EchoReq json.RawMessage `json:"echo_req"`
}

type wireTick struct {
	Symbol  string     `json:"symbol"`
	Epoch   int64      `json:"epoch"`
	Quote   jsonNumber `json:"quote"`
	PipSize int        `json:"pip_size"`
}

type wireOHLC struct {
	Symbol      string     `json:"symbol"`
	OpenTime    int64      `json:"open_time"`
	Epoch       int64      `json:"epoch"`
	Open        jsonNumber `json:"open"`
	High        jsonNumber `json:"high"`
	Low         jsonNumber `json:"low"`
	Close       jsonNumber `json:"close"`
	Granularity int        `json:"granularity"`
}

type wireCandle struct {
	Epoch int64      `json:"epoch"`
	Open  jsonNumber `json:"open"`
	High  jsonNumber `json:"high"`
	Low   jsonNumber `json:"low"`
	Close jsonNumber `json:"close"`
}

type wireProposal struct {
	ID        string     `json:"id"`
	AskPrice  jsonNumber `json:"ask_price"`
	Payout    jsonNumber `json:"payout"`
	Spot      jsonNumber `json:"spot"`
	DateStart int64      `json:"date_start"`
}

type wireOpenContract struct {
	ContractID    int64       `json:"contract_id"`
	ContractType  string      `json:"contract_type"`
	Underlying    string      `json:"underlying"`
	BuyPrice      jsonNumber  `json:"buy_price"`
	BidPrice      jsonNumber  `json:"bid_price"`
	SellPrice     *jsonNumber `json:"sell_price"`
	Payout        jsonNumber  `json:"payout"`
	EntrySpot     jsonNumber  `json:"entry_spot"`
	ExitSpot      jsonNumber  `json:"exit_spot"`
	DateStart     int64       `json:"date_start"`
	DateExpiry    int64       `json:"date_expiry"`
	DateSold      int64       `json:"sell_time"`
	TxIDBuy       int64       `json:"transaction_id_buy"`
	TxIDSell      int64       `json:"transaction_id_sell"`
	IsExpired     intBool     `json:"is_expired"`
	IsSold        intBool     `json:"is_sold"`
	IsValidToSell intBool     `json:"is_valid_to_sell"`
	Status        string      `json:"status"`
}

func (c *wireOpenContract) toDomain() *domain.OpenContract {
	oc := &domain.OpenContract{
		ContractID:        c.ContractID,
		ContractType:      c.ContractType,
		Underlying:        c.Underlying,
		BuyPrice:          float64(c.BuyPrice),
		BidPrice:          float64(c.BidPrice),
		Payout:            float64(c.Payout),
		EntrySpot:         float64(c.EntrySpot),
		ExitSpot:          float64(c.ExitSpot),
		DateStart:         c.DateStart,
		DateExpiry:        c.DateExpiry,
		DateSold:          c.DateSold,
		TransactionIDBuy:  c.TxIDBuy,
		TransactionIDSell: c.TxIDSell,
		IsExpired:         bool(c.IsExpired),
		IsSold:            bool(c.IsSold),
		IsValidToSell:     bool(c.IsValidToSell),
		Status:            c.Status,
	}
	if c.SellPrice != nil {
		v := float64(*c.SellPrice)
		oc.SellPrice = &v
	}
	return oc
}

// jsonNumber tolerates numeric fields arriving as either number or string,
// which the trading API does for prices.
type jsonNumber float64

func (n *jsonNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = jsonNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = jsonNumber(v)
	return nil
}

// intBool tolerates boolean flags arriving as 0/1.
type intBool bool

func (b *intBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "1", "true":
		*b = true
	default:
		*b = false
	}
	return nil
}
