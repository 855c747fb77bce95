package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"sequencer/domain/orderbook"
)

const (
	orderLimit      = "limit"
	orderMarket     = "market"
	orderBackToBack = "backToBack"
)

// Orders encodes each order as {"type": ..., "order": {...}}.
type Orders []orderbook.Order

type taggedOrder struct {
	Type  string          `json:"type"`
	Order json.RawMessage `json:"order"`
}

func (o Orders) MarshalJSON() ([]byte, error) {
	out := make([]taggedOrder, 0, len(o))
	for _, order := range o {
		var tag string
		switch order.(type) {
		case *orderbook.LimitOrder:
			tag = orderLimit
		case *orderbook.MarketOrder:
			tag = orderMarket
		case *orderbook.BackToBackOrder:
			tag = orderBackToBack
		default:
			return nil, errors.Newf("unsupported order %T", order)
		}
		raw, err := json.Marshal(order)
		if err != nil {
			return nil, err
		}
		out = append(out, taggedOrder{Type: tag, Order: raw})
	}
	return json.Marshal(out)
}

func (o *Orders) UnmarshalJSON(b []byte) error {
	var tagged []taggedOrder
	if err := json.Unmarshal(b, &tagged); err != nil {
		return err
	}
	orders := make(Orders, 0, len(tagged))
	for i, t := range tagged {
		var order orderbook.Order
		switch t.Type {
		case orderLimit:
			order = &orderbook.LimitOrder{}
		case orderMarket:
			order = &orderbook.MarketOrder{}
		case orderBackToBack:
			order = &orderbook.BackToBackOrder{}
		default:
			return errors.Newf("order %d: unknown type %q", i, t.Type)
		}
		if err := json.Unmarshal(t.Order, order); err != nil {
			return errors.Wrapf(err, "order %d", i)
		}
		orders = append(orders, order)
	}
	*o = orders
	return nil
}
