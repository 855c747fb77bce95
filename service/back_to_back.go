package service

import (
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// backToBackRoute describes the two legs of a swap through a bridge asset.
type backToBackRoute struct {
	first, second         *orderbook.Market
	firstSide, secondSide orderbook.Side
}

// routeBackToBack resolves the leg sides. When first's quote is second's
// base, or first's base is second's quote, both legs trade the same way;
// otherwise the bridge sits on the same side of both markets and the
// second leg trades the opposite way.
func (e *Engine) routeBackToBack(first *orderbook.Market, o *orderbook.BackToBackOrder) (backToBackRoute, protocol.Error) {
	second, ok := e.state.Market(o.SecondMarketID)
	if !ok {
		return backToBackRoute{}, protocol.ErrorUnknownMarket
	}
	b1, q1 := first.ID.Assets()
	b2, q2 := second.ID.Assets()
	assets := map[orderbook.Asset]struct{}{b1: {}, q1: {}, b2: {}, q2: {}}
	if len(assets) != 3 {
		return backToBackRoute{}, protocol.ErrorInvalidBackToBackOrder
	}

	r := backToBackRoute{first: first, second: second, firstSide: o.Side, secondSide: o.Side}
	if q1 != b2 && b1 != q2 {
		r.secondSide = o.Side.Opposite()
	}

	// the asset the first leg delivers must be the one the second spends
	bridge := b1
	if r.firstSide == orderbook.Sell {
		bridge = q1
	}
	spent := q2
	if r.secondSide == orderbook.Sell {
		spent = b2
	}
	if bridge != spent {
		return backToBackRoute{}, protocol.ErrorInvalidBackToBackOrder
	}
	return r, protocol.ErrorNone
}

// firstLegBridge predicts how much bridge asset a first leg of qty delivers.
func (r backToBackRoute) firstLegBridge(qty decimal.Decimal) (filled, bridge decimal.Decimal) {
	if r.firstSide == orderbook.Sell {
		return r.first.QuantityAndNotionalForMarketSell(qty)
	}
	filled, _ = r.first.QuantityAndNotionalForMarketBuy(qty)
	return filled, filled
}

// bridgeAvailable is how much of bridge the second market can take.
func (r backToBackRoute) bridgeAvailable(bridge decimal.Decimal) decimal.Decimal {
	if r.secondSide == orderbook.Sell {
		return r.second.ClearingQuantityForMarketSell(bridge, 0, false)
	}
	_, spend := r.second.QuantityAndNotionalForMarketBuy(r.second.QuantityForMarketBuy(bridge))
	return spend
}

// secondLegAmount sizes the second leg from the bridge asset held.
func (r backToBackRoute) secondLegAmount(bridge decimal.Decimal, taker amount.FeeRate) decimal.Decimal {
	if r.secondSide == orderbook.Sell {
		return r.second.ClearingQuantityForMarketSell(bridge, 0, false)
	}
	return r.second.QuantityForMarketBuy(bridge.Sub(amount.Fee(bridge, taker)))
}

// applyBackToBack runs the first leg without a taker fee, then sizes the
// second leg from what the first leg actually delivered.
func (e *Engine) applyBackToBack(first *orderbook.Market, account orderbook.AccountID, o *orderbook.BackToBackOrder, now int64) *protocol.Response {
	r, code := e.routeBackToBack(first, o)
	if code != protocol.ErrorNone {
		return reject(code)
	}
	rates := e.state.FeeRates

	starting := o.Amount
	if o.Percentage > 0 {
		starting, _ = e.amountForPercentage(first, account, r.firstSide, min(o.Percentage, 100))
	}

	filled, bridge := r.firstLegBridge(starting)
	available := r.bridgeAvailable(bridge)
	if !filled.IsPositive() || !available.IsPositive() {
		return reject(protocol.ErrorInvalidBackToBackOrder)
	}

	firstQty := filled
	if available.LessThan(bridge) {
		if r.firstSide == orderbook.Sell {
			firstQty = first.QuantityForMarketSell(available)
		} else {
			firstQty = available
		}
		_, bridge = r.firstLegBridge(firstQty)
	}

	firstLeg := &orderbook.MarketOrder{Guid: o.Guid, Side: r.firstSide, Amount: firstQty}
	firstRates := amount.FeeRates{Maker: rates.Maker}
	if code := e.checkLimits(first, account, []orderbook.Order{firstLeg}, nil, firstRates); code != protocol.ErrorNone {
		return reject(code)
	}

	predicted := &orderbook.MarketOrder{Guid: o.Guid, Side: r.secondSide, Amount: r.secondLegAmount(bridge, rates.Taker)}
	if r.second.IsBelowMinFee(predicted, rates) {
		e.log.Debug("back-to-back second leg below min fee", "guid", o.Guid, "market", r.second.ID)
		return &protocol.Response{OrdersChanged: []orderbook.OrderChanged{{Guid: o.Guid, Disposition: orderbook.Rejected}}}
	}

	fx := newEffects()
	res1 := first.ApplyOrderBatch(account, []orderbook.Order{firstLeg}, nil, firstRates, now)
	if d := res1.OrdersChanged[0].Disposition; d != orderbook.Filled && d != orderbook.PartiallyFilled {
		fx.ordersChanged = append(fx.ordersChanged, res1.OrdersChanged...)
		return e.respond(fx)
	}
	e.applyMarketResult(fx, first, account, res1, &o.Guid)

	delivered := sumAmount(res1.Trades)
	if r.firstSide == orderbook.Sell {
		delivered = sumNotional(first, res1.Trades)
	}
	secondLeg := &orderbook.MarketOrder{Guid: o.Guid, Side: r.secondSide, Amount: r.secondLegAmount(delivered, rates.Taker)}
	res2 := r.second.ApplyOrderBatch(account, []orderbook.Order{secondLeg}, nil, rates, now)
	e.applyMarketResult(fx, r.second, account, res2, &o.Guid)

	change := orderbook.OrderChanged{Guid: o.Guid, Disposition: orderbook.Filled}
	if !firstQty.Equal(starting) || res1.OrdersChanged[0].Disposition != orderbook.Filled || res2.OrdersChanged[0].Disposition != orderbook.Filled {
		change.Disposition = orderbook.PartiallyFilled
	}
	if o.Percentage > 0 {
		change.NewQuantity = &starting
	}
	fx.ordersChanged = append(fx.ordersChanged, change)

	e.autoReduce(fx)
	return e.respond(fx)
}
