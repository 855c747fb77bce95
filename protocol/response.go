package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/ledger"
	"sequencer/domain/orderbook"
)

// Error is the request level outcome. Anything other than ErrorNone means
// the request changed nothing.
type Error uint8

const (
	ErrorNone Error = iota
	ErrorExceedsLimit
	ErrorInvalidBackToBackOrder
	ErrorUnknownMarket
	ErrorMarketExists
	ErrorInvalidFeeRate
	ErrorInvalidWithdrawalFee
	ErrorInvalidMarketMinFee
	ErrorUnknownRequest
)

var errorNames = [...]string{
	ErrorNone:                   "None",
	ErrorExceedsLimit:           "ExceedsLimit",
	ErrorInvalidBackToBackOrder: "InvalidBackToBackOrder",
	ErrorUnknownMarket:          "UnknownMarket",
	ErrorMarketExists:           "MarketExists",
	ErrorInvalidFeeRate:         "InvalidFeeRate",
	ErrorInvalidWithdrawalFee:   "InvalidWithdrawalFee",
	ErrorInvalidMarketMinFee:    "InvalidMarketMinFee",
	ErrorUnknownRequest:         "UnknownRequest",
}

func (e Error) String() string {
	if int(e) < len(errorNames) {
		return errorNames[e]
	}
	return "Unknown"
}

func (e Error) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Error) UnmarshalText(b []byte) error {
	for i, name := range errorNames {
		if name == string(b) {
			*e = Error(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error code %q", b)
}

type MarketCreated struct {
	MarketID          orderbook.MarketID `json:"marketId"`
	TickSize          decimal.Decimal    `json:"tickSize"`
	MaxOrdersPerLevel int                `json:"maxOrdersPerLevel"`
	BaseDecimals      int32              `json:"baseDecimals"`
	QuoteDecimals     int32              `json:"quoteDecimals"`
	MinFee            decimal.Decimal    `json:"minFee"`
}

type WithdrawalCreated struct {
	ExternalGuid string          `json:"externalGuid"`
	Fee          decimal.Decimal `json:"fee"`
}

// Response is produced for every sequenced request. CreatedAt and
// ProcessingTime are wall clock values and are ignored when responses
// are compared on replay.
type Response struct {
	Guid     string `json:"guid"`
	Sequence uint64 `json:"sequence"`
	Error    Error  `json:"error"`

	OrdersChanged        []orderbook.OrderChanged        `json:"ordersChanged,omitempty"`
	OrdersChangeRejected []orderbook.OrderChangeRejected `json:"ordersChangeRejected,omitempty"`
	TradesCreated        []orderbook.Trade               `json:"tradesCreated,omitempty"`
	BalancesChanged      []orderbook.BalanceChange       `json:"balancesChanged,omitempty"`
	LimitsUpdated        []ledger.LimitsUpdate           `json:"limitsUpdated,omitempty"`
	WithdrawalsCreated   []WithdrawalCreated             `json:"withdrawalsCreated,omitempty"`
	MarketsCreated       []MarketCreated                 `json:"marketsCreated,omitempty"`
	FeeRatesSet          *amount.FeeRates                `json:"feeRatesSet,omitempty"`
	WithdrawalFeesSet    []WithdrawalFee                 `json:"withdrawalFeesSet,omitempty"`
	MarketMinFeesSet     []MarketMinFee                  `json:"marketMinFeesSet,omitempty"`
	BidOfferState        *orderbook.BidOfferState        `json:"bidOfferState,omitempty"`

	CreatedAt      int64 `json:"createdAt"`
	ProcessingTime int64 `json:"processingTime"`
}

// Normalize returns the response in canonical form: wall clock fields
// cleared and decimals rewritten through their string form so values
// decoded from the output log compare equal to freshly computed ones.
func (r *Response) Normalize() (*Response, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Response
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	out.CreatedAt = 0
	out.ProcessingTime = 0
	return &out, nil
}

// SameOutcome compares two responses ignoring wall clock fields.
func SameOutcome(a, b *Response) (bool, error) {
	na, err := a.Normalize()
	if err != nil {
		return false, err
	}
	nb, err := b.Normalize()
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(na, nb), nil
}
