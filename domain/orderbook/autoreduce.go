package orderbook

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

// AutoReduce shrinks the account's resting orders that lock asset until
// what they reserve fits within limit. Sells are kept from the lowest
// level up and buys from the highest level down, FIFO within a level, so
// the orders furthest from the market are cut first. Orders reduced to
// zero leave the book. Changes come back in guid order.
func (m *Market) AutoReduce(account AccountID, asset Asset, limit decimal.Decimal) []OrderChanged {
	limit = amount.Max(limit, amount.Zero)

	var changes []OrderChanged
	switch asset {
	case m.ID.Base():
		changes = m.reduceSells(account, limit)
	case m.ID.Quote():
		changes = m.reduceBuys(account, limit)
	}
	slices.SortFunc(changes, func(a, b OrderChanged) int { return cmp.Compare(a.Guid, b.Guid) })
	return changes
}

func (m *Market) reduceSells(account AccountID, limit decimal.Decimal) []OrderChanged {
	orders := slices.Clone(m.sellOrdersByAccount[account])
	slices.SortStableFunc(orders, func(a, b *LevelOrder) int { return cmp.Compare(a.level.Ix, b.level.Ix) })

	var changes []OrderChanged
	total := amount.Zero
	for _, o := range orders {
		if total.Add(o.Quantity).LessThanOrEqual(limit) {
			total = total.Add(o.Quantity)
			continue
		}
		qty := limit.Sub(total)
		changes = append(changes, m.reduceTo(o, qty))
		total = total.Add(qty)
	}
	return changes
}

func (m *Market) reduceBuys(account AccountID, limit decimal.Decimal) []OrderChanged {
	orders := slices.Clone(m.buyOrdersByAccount[account])
	slices.SortStableFunc(orders, func(a, b *LevelOrder) int { return cmp.Compare(b.level.Ix, a.level.Ix) })

	var changes []OrderChanged
	total := amount.Zero
	for _, o := range orders {
		price := o.level.Price
		reserved := amount.NotionalPlusFee(o.Quantity, price, m.BaseDecimals, m.QuoteDecimals, o.FeeRate)
		if total.Add(reserved).LessThanOrEqual(limit) {
			total = total.Add(reserved)
			continue
		}

		room := limit.Sub(total)
		target := amount.NotionalWithoutFee(room, o.FeeRate)
		qty := amount.QuantityFromNotional(target, price, m.BaseDecimals, m.QuoteDecimals)
		// fee truncation can overshoot room by a quote unit
		for qty.IsPositive() && amount.NotionalPlusFee(qty, price, m.BaseDecimals, m.QuoteDecimals, o.FeeRate).GreaterThan(room) {
			target = target.Sub(amount.One)
			qty = amount.QuantityFromNotional(target, price, m.BaseDecimals, m.QuoteDecimals)
		}
		qty = amount.Max(qty, amount.Zero)
		total = total.Add(amount.NotionalPlusFee(qty, price, m.BaseDecimals, m.QuoteDecimals, o.FeeRate))
		changes = append(changes, m.reduceTo(o, qty))
	}
	return changes
}

func (m *Market) reduceTo(o *LevelOrder, qty decimal.Decimal) OrderChanged {
	change := OrderChanged{Guid: o.Guid, Disposition: AutoReduced, NewQuantity: quantityPtr(qty)}
	if qty.IsPositive() {
		o.level.Reduce(o, qty)
	} else {
		m.removeOrder(o)
	}
	return change
}
