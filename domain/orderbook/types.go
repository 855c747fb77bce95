package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	AccountID uint64
	OrderGuid int64
	Asset     string
)

// MarketID is "BASE/QUOTE".
type MarketID string

func (m MarketID) Assets() (base, quote Asset) {
	b, q, _ := strings.Cut(string(m), "/")
	return Asset(b), Asset(q)
}

func (m MarketID) Base() Asset {
	b, _ := m.Assets()
	return b
}

func (m MarketID) Quote() Asset {
	_, q := m.Assets()
	return q
}

func (m MarketID) Valid() bool {
	b, q := m.Assets()
	return b != "" && q != "" && b != q && !strings.Contains(string(q), "/")
}

// ----- Side -----

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// ----- Disposition -----

type Disposition uint8

const (
	Accepted Disposition = iota
	Rejected
	Filled
	PartiallyFilled
	Canceled
	AutoReduced
)

var dispositionNames = [...]string{
	Accepted:        "Accepted",
	Rejected:        "Rejected",
	Filled:          "Filled",
	PartiallyFilled: "PartiallyFilled",
	Canceled:        "Canceled",
	AutoReduced:     "AutoReduced",
}

func (d Disposition) String() string {
	if int(d) < len(dispositionNames) {
		return dispositionNames[d]
	}
	return "Unknown"
}

func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Disposition) UnmarshalText(b []byte) error {
	for i, name := range dispositionNames {
		if name == string(b) {
			*d = Disposition(i)
			return nil
		}
	}
	return fmt.Errorf("unknown disposition %q", b)
}

// ----- Cancel rejection -----

type RejectReason uint8

const (
	RejectNone RejectReason = iota
	NotForUser
	DoesNotExist
)

func (r RejectReason) String() string {
	switch r {
	case NotForUser:
		return "NotForUser"
	case DoesNotExist:
		return "DoesNotExist"
	default:
		return "None"
	}
}

func (r RejectReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RejectReason) UnmarshalText(b []byte) error {
	switch string(b) {
	case "None":
		*r = RejectNone
	case "NotForUser":
		*r = NotForUser
	case "DoesNotExist":
		*r = DoesNotExist
	default:
		return fmt.Errorf("unknown reject reason %q", b)
	}
	return nil
}

// ----- Effects -----

// OrderChanged reports a disposition change for one order. NewQuantity is
// set for partially filled makers, auto-reduced orders and sized
// percentage orders.
type OrderChanged struct {
	Guid        OrderGuid        `json:"guid"`
	Disposition Disposition      `json:"disposition"`
	NewQuantity *decimal.Decimal `json:"newQuantity,omitempty"`
}

type OrderChangeRejected struct {
	Guid   OrderGuid    `json:"guid"`
	Reason RejectReason `json:"reason"`
}

// Trade is always priced at the maker's level.
type Trade struct {
	MarketID      MarketID        `json:"marketId"`
	BuyOrderGuid  OrderGuid       `json:"buyOrderGuid"`
	SellOrderGuid OrderGuid       `json:"sellOrderGuid"`
	Amount        decimal.Decimal `json:"amount"`
	LevelIx       int             `json:"levelIx"`
	Price         decimal.Decimal `json:"price"`
	BuyerFee      decimal.Decimal `json:"buyerFee"`
	SellerFee     decimal.Decimal `json:"sellerFee"`
	CreatedAt     int64           `json:"createdAt"`
}

type BalanceChange struct {
	Account AccountID       `json:"account"`
	Asset   Asset           `json:"asset"`
	Delta   decimal.Decimal `json:"delta"`
}

// BidOfferState exposes the book's edge indexes, -1 when a side is empty.
type BidOfferState struct {
	MinBidIx    int `json:"minBidIx"`
	BestBidIx   int `json:"bestBidIx"`
	BestOfferIx int `json:"bestOfferIx"`
	MaxOfferIx  int `json:"maxOfferIx"`
}

func quantityPtr(q decimal.Decimal) *decimal.Decimal {
	return &q
}
