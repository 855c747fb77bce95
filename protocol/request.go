// Package protocol defines the messages exchanged with the sequencer and
// their JSON encoding. Requests and responses are written to the input
// and output logs in this form.
package protocol

import (
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
)

type RequestType string

const (
	TypeAddMarket         RequestType = "AddMarket"
	TypeSetFeeRates       RequestType = "SetFeeRates"
	TypeSetWithdrawalFees RequestType = "SetWithdrawalFees"
	TypeSetMarketMinFees  RequestType = "SetMarketMinFees"
	TypeApplyOrderBatch   RequestType = "ApplyOrderBatch"
	TypeApplyBalanceBatch RequestType = "ApplyBalanceBatch"
)

// Request carries exactly one payload matching Type. Guid is the caller's
// idempotency key and is echoed on the response.
type Request struct {
	Guid string      `json:"guid"`
	Type RequestType `json:"type"`

	AddMarket      *AddMarket       `json:"addMarket,omitempty"`
	FeeRates       *amount.FeeRates `json:"feeRates,omitempty"`
	WithdrawalFees []WithdrawalFee  `json:"withdrawalFees,omitempty"`
	MarketMinFees  []MarketMinFee   `json:"marketMinFees,omitempty"`
	OrderBatch     *OrderBatch      `json:"orderBatch,omitempty"`
	BalanceBatch   *BalanceBatch    `json:"balanceBatch,omitempty"`
}

type AddMarket struct {
	MarketID          orderbook.MarketID `json:"marketId"`
	TickSize          decimal.Decimal    `json:"tickSize"`
	MaxOrdersPerLevel int                `json:"maxOrdersPerLevel"`
	BaseDecimals      int32              `json:"baseDecimals"`
	QuoteDecimals     int32              `json:"quoteDecimals"`
	MinFee            decimal.Decimal    `json:"minFee"`
}

type WithdrawalFee struct {
	Asset orderbook.Asset `json:"asset"`
	Fee   decimal.Decimal `json:"fee"`
}

type MarketMinFee struct {
	MarketID orderbook.MarketID `json:"marketId"`
	MinFee   decimal.Decimal    `json:"minFee"`
}

// OrderBatch adds and cancels orders for one account in one market.
// A back-to-back order must be the only entry in the batch.
type OrderBatch struct {
	MarketID       orderbook.MarketID      `json:"marketId"`
	Account        orderbook.AccountID     `json:"account"`
	OrdersToAdd    Orders                  `json:"ordersToAdd,omitempty"`
	OrdersToCancel []orderbook.CancelOrder `json:"ordersToCancel,omitempty"`
}

type BalanceBatch struct {
	Deposits          []Deposit          `json:"deposits,omitempty"`
	Withdrawals       []Withdrawal       `json:"withdrawals,omitempty"`
	FailedWithdrawals []FailedWithdrawal `json:"failedWithdrawals,omitempty"`
	FailedSettlements []FailedSettlement `json:"failedSettlements,omitempty"`
}

type Deposit struct {
	Account orderbook.AccountID `json:"account"`
	Asset   orderbook.Asset     `json:"asset"`
	Amount  decimal.Decimal     `json:"amount"`
}

// Withdrawal of Amount zero withdraws the whole balance.
type Withdrawal struct {
	Account      orderbook.AccountID `json:"account"`
	Asset        orderbook.Asset     `json:"asset"`
	Amount       decimal.Decimal     `json:"amount"`
	ExternalGuid string              `json:"externalGuid"`
}

type FailedWithdrawal struct {
	Account orderbook.AccountID `json:"account"`
	Asset   orderbook.Asset     `json:"asset"`
	Amount  decimal.Decimal     `json:"amount"`
}

// FailedSettlement reverses a trade that could not be settled.
type FailedSettlement struct {
	BuyAccount  orderbook.AccountID `json:"buyAccount"`
	SellAccount orderbook.AccountID `json:"sellAccount"`
	MarketID    orderbook.MarketID  `json:"marketId"`
	Trade       orderbook.Trade     `json:"trade"`
}
