package service

import (
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// sizePercentageOrders resolves percentage market orders into absolute
// amounts from the account's free balance. The returned slice holds
// copies; the request is left untouched.
func (e *Engine) sizePercentageOrders(m *orderbook.Market, account orderbook.AccountID, orders []orderbook.Order) []orderbook.Order {
	sized := make([]orderbook.Order, 0, len(orders))
	for _, order := range orders {
		mo, ok := order.(*orderbook.MarketOrder)
		if !ok || !mo.HasPercentage() {
			sized = append(sized, order)
			continue
		}
		cp := *mo
		cp.Percentage = min(cp.Percentage, 100)
		cp.Amount, cp.MaxAvailable = e.amountForPercentage(m, account, cp.Side, cp.Percentage)
		sized = append(sized, &cp)
	}
	return sized
}

// amountForPercentage sizes a percentage order. The balance is reported
// back as the dust sweep allowance only for a 100% buy by an account
// with nothing reserved in the quote asset anywhere.
func (e *Engine) amountForPercentage(m *orderbook.Market, account orderbook.AccountID, side orderbook.Side, pct int32) (decimal.Decimal, decimal.NullDecimal) {
	base, quote := m.ID.Assets()
	if side == orderbook.Sell {
		return m.AmountForPercentageSell(e.state.Free(account, base), pct), decimal.NullDecimal{}
	}

	qty := m.AmountForPercentageBuy(e.state.Free(account, quote), pct, e.state.FeeRates.Taker)
	var maxAvailable decimal.NullDecimal
	if pct == 100 && e.state.TotalConsumed(account, quote).IsZero() {
		maxAvailable = decimal.NewNullDecimal(e.state.Balance(account, quote))
	}
	return qty, maxAvailable
}

// checkLimits verifies that after the batch the account's reservations
// of each asset, summed over every market, stay within its balance.
// Cancels in the same batch release what they reserve.
func (e *Engine) checkLimits(m *orderbook.Market, account orderbook.AccountID, orders []orderbook.Order, cancels []orderbook.CancelOrder, rates amount.FeeRates) protocol.Error {
	baseRequired, quoteRequired := amount.Zero, amount.Zero
	var addsBase, addsQuote bool

	for _, order := range orders {
		switch o := order.(type) {
		case *orderbook.LimitOrder:
			if o.Side == orderbook.Sell {
				baseRequired, addsBase = baseRequired.Add(o.Amount), true
			} else {
				quoteRequired, addsQuote = quoteRequired.Add(limitBuyRequirement(m, o, rates)), true
			}
		case *orderbook.MarketOrder:
			if o.Side == orderbook.Sell {
				baseRequired, addsBase = baseRequired.Add(o.Amount), true
			} else {
				_, notional := m.QuantityAndNotionalForMarketBuy(o.Amount)
				quoteRequired, addsQuote = quoteRequired.Add(notional).Add(amount.Fee(notional, rates.Taker)), true
			}
		}
	}

	for _, c := range cancels {
		o, ok := m.Order(c.Guid)
		if !ok || o.Account != account {
			continue
		}
		b, q := m.ReservedFor(o)
		baseRequired = baseRequired.Sub(b)
		quoteRequired = quoteRequired.Sub(q)
	}

	base, quote := m.ID.Assets()
	if addsBase && exceeds(baseRequired, e.state.TotalConsumed(account, base), e.state.Balance(account, base)) {
		e.log.Debug("order batch exceeds base limit", "account", account, "market", m.ID, "required", baseRequired)
		return protocol.ErrorExceedsLimit
	}
	if addsQuote && exceeds(quoteRequired, e.state.TotalConsumed(account, quote), e.state.Balance(account, quote)) {
		e.log.Debug("order batch exceeds quote limit", "account", account, "market", m.ID, "required", quoteRequired)
		return protocol.ErrorExceedsLimit
	}
	return protocol.ErrorNone
}

func exceeds(required, consumed, balance decimal.Decimal) bool {
	return required.Add(consumed).GreaterThan(balance)
}

// limitBuyRequirement prices the part of a limit buy that crosses the
// book at the levels it takes, with the taker fee, and the remainder at
// the limit price with the maker fee.
func limitBuyRequirement(m *orderbook.Market, o *orderbook.LimitOrder, rates amount.FeeRates) decimal.Decimal {
	price := m.Price(o.LevelIx)
	if best := m.BidOfferState().BestOfferIx; best == -1 || o.LevelIx < best {
		return amount.NotionalPlusFee(o.Amount, price, m.BaseDecimals, m.QuoteDecimals, rates.Maker)
	}
	crossing, notional := m.CrossingQuantityAndNotional(o.Amount, o.LevelIx)
	resting := amount.NotionalPlusFee(o.Amount.Sub(crossing), price, m.BaseDecimals, m.QuoteDecimals, rates.Maker)
	return notional.Add(amount.Fee(notional, rates.Taker)).Add(resting)
}
