package orderbook

import "github.com/shopspring/decimal"

// Order is a closed set of variants: *LimitOrder, *MarketOrder and
// *BackToBackOrder. Callers switch on the concrete type.
type Order interface {
	OrderGuid() OrderGuid
	OrderSide() Side
	isOrder()
}

// LimitOrder rests at LevelIx (price = tickSize * LevelIx) after crossing
// whatever it can.
type LimitOrder struct {
	Guid    OrderGuid       `json:"guid"`
	Side    Side            `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	LevelIx int             `json:"levelIx"`
}

// MarketOrder takes liquidity from the best opposite level outward and
// never rests. Percentage, when set, sizes the order from the account's
// free balance instead of Amount.
type MarketOrder struct {
	Guid       OrderGuid       `json:"guid"`
	Side       Side            `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage int32           `json:"percentage,omitempty"`

	// MaxAvailable is filled in during sizing and marks the order as
	// eligible for sweeping the final rounding residue into the last fee.
	MaxAvailable decimal.NullDecimal `json:"-"`
}

// BackToBackOrder swaps through a bridge asset: a market order on the
// batch market followed by a market order on SecondMarketID.
type BackToBackOrder struct {
	Guid           OrderGuid       `json:"guid"`
	Side           Side            `json:"side"`
	Amount         decimal.Decimal `json:"amount"`
	Percentage     int32           `json:"percentage,omitempty"`
	SecondMarketID MarketID        `json:"secondMarketId"`
}

func (o *LimitOrder) OrderGuid() OrderGuid      { return o.Guid }
func (o *LimitOrder) OrderSide() Side           { return o.Side }
func (o *MarketOrder) OrderGuid() OrderGuid     { return o.Guid }
func (o *MarketOrder) OrderSide() Side          { return o.Side }
func (o *BackToBackOrder) OrderGuid() OrderGuid { return o.Guid }
func (o *BackToBackOrder) OrderSide() Side      { return o.Side }

func (*LimitOrder) isOrder()      {}
func (*MarketOrder) isOrder()     {}
func (*BackToBackOrder) isOrder() {}

// HasPercentage reports whether the order is sized from the balance.
func (o *MarketOrder) HasPercentage() bool {
	return o.Percentage > 0
}

type CancelOrder struct {
	Guid OrderGuid `json:"guid"`
}
