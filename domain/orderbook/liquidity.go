package orderbook

import (
	"iter"
	"math"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

// offers yields sell levels from the best offer upward.
func (m *Market) offers() iter.Seq[*Level] {
	return func(yield func(*Level) bool) {
		if m.bestOfferIx == -1 {
			return
		}
		for l := m.levels.Get(m.bestOfferIx); l != nil; l = m.levels.Successor(l.Ix) {
			if !yield(l) {
				return
			}
		}
	}
}

// bids yields buy levels from the best bid downward.
func (m *Market) bids() iter.Seq[*Level] {
	return func(yield func(*Level) bool) {
		if m.bestBidIx == -1 {
			return
		}
		for l := m.levels.Get(m.bestBidIx); l != nil; l = m.levels.Predecessor(l.Ix) {
			if !yield(l) {
				return
			}
		}
	}
}

func (m *Market) quantityAndNotionalForMarketBuy(qty decimal.Decimal, stopAt int) (decimal.Decimal, decimal.Decimal) {
	remaining := qty
	notional := amount.Zero
	for l := range m.offers() {
		if l.Ix > stopAt || !remaining.IsPositive() {
			break
		}
		atLevel := amount.Min(l.TotalQuantity(), remaining)
		notional = notional.Add(amount.Notional(atLevel, l.Price, m.BaseDecimals, m.QuoteDecimals))
		remaining = remaining.Sub(atLevel)
	}
	return qty.Sub(remaining), notional
}

// QuantityAndNotionalForMarketBuy returns how much of qty the offers can
// fill and the notional paid for it, fees excluded.
func (m *Market) QuantityAndNotionalForMarketBuy(qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return m.quantityAndNotionalForMarketBuy(qty, math.MaxInt)
}

// CrossingQuantityAndNotional is QuantityAndNotionalForMarketBuy limited
// to offers at or below levelIx.
func (m *Market) CrossingQuantityAndNotional(qty decimal.Decimal, levelIx int) (decimal.Decimal, decimal.Decimal) {
	return m.quantityAndNotionalForMarketBuy(qty, levelIx)
}

// QuantityAndNotionalForMarketSell returns how much of qty the bids can
// absorb and the notional received, fees excluded.
func (m *Market) QuantityAndNotionalForMarketSell(qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	remaining := qty
	notional := amount.Zero
	for l := range m.bids() {
		if !remaining.IsPositive() {
			break
		}
		atLevel := amount.Min(l.TotalQuantity(), remaining)
		notional = notional.Add(amount.Notional(atLevel, l.Price, m.BaseDecimals, m.QuoteDecimals))
		remaining = remaining.Sub(atLevel)
	}
	return qty.Sub(remaining), notional
}

// ClearingQuantityForMarketSell is the part of qty the bids can absorb,
// down to stopAt when hasStop is set.
func (m *Market) ClearingQuantityForMarketSell(qty decimal.Decimal, stopAt int, hasStop bool) decimal.Decimal {
	remaining := qty
	for l := range m.bids() {
		if (hasStop && l.Ix < stopAt) || !remaining.IsPositive() {
			break
		}
		remaining = remaining.Sub(amount.Min(l.TotalQuantity(), remaining))
	}
	return qty.Sub(remaining)
}

// QuantityForMarketBuy returns the base quantity notional buys, walking
// offers from the best.
func (m *Market) QuantityForMarketBuy(notional decimal.Decimal) decimal.Decimal {
	return m.quantityForNotional(m.offers(), notional)
}

// QuantityForMarketSell returns the base quantity that must be sold into
// the bids to receive notional.
func (m *Market) QuantityForMarketSell(notional decimal.Decimal) decimal.Decimal {
	return m.quantityForNotional(m.bids(), notional)
}

func (m *Market) quantityForNotional(levels iter.Seq[*Level], notional decimal.Decimal) decimal.Decimal {
	remaining := notional
	base := amount.Zero
	for l := range levels {
		qty := l.TotalQuantity()
		if !qty.IsPositive() {
			continue
		}
		atLevel := amount.Min(remaining, amount.Notional(qty, l.Price, m.BaseDecimals, m.QuoteDecimals))
		if atLevel.Equal(remaining) {
			return base.Add(amount.QuantityFromNotional(remaining, l.Price, m.BaseDecimals, m.QuoteDecimals))
		}
		base = base.Add(qty)
		remaining = remaining.Sub(atLevel)
	}
	return base
}

// AmountForPercentageSell sizes a percentage market sell from the free
// base balance, bounded by what the bids can absorb.
func (m *Market) AmountForPercentageSell(available decimal.Decimal, pct int32) decimal.Decimal {
	limit := amount.Max(available, amount.Zero)
	return amount.Percent(m.ClearingQuantityForMarketSell(limit, 0, false), pct)
}

// AmountForPercentageBuy sizes a percentage market buy from the free quote
// balance after leaving room for the taker fee.
func (m *Market) AmountForPercentageBuy(available decimal.Decimal, pct int32, taker amount.FeeRate) decimal.Decimal {
	limit := amount.Percent(amount.Max(available, amount.Zero), pct)
	return m.QuantityForMarketBuy(amount.AdjustForFee(limit, taker))
}
