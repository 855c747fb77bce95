// Package amount holds the fixed-point arithmetic shared by the order book
// and the ledger.
//
// Every quantity is an integral decimal.Decimal expressed in the fundamental
// units of its asset. Prices and tick sizes are exact decimals. Nothing in
// here touches binary floating point, so identical inputs always produce
// identical outputs on replay.
package amount

import "github.com/shopspring/decimal"

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Quo is truncating integer division (toward zero). A zero divisor yields zero.
func Quo(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	q, _ := a.QuoRem(b, 0)
	return q
}

// Notional converts a base quantity at price into quote fundamental units:
// truncate(qty * price * 10^(quoteDecimals-baseDecimals)).
func Notional(qty, price decimal.Decimal, baseDecimals, quoteDecimals int32) decimal.Decimal {
	return qty.Mul(price).Shift(quoteDecimals - baseDecimals).Truncate(0)
}

// NotionalPlusFee is Notional plus the fee charged on it at rate.
func NotionalPlusFee(qty, price decimal.Decimal, baseDecimals, quoteDecimals int32, rate FeeRate) decimal.Decimal {
	n := Notional(qty, price, baseDecimals, quoteDecimals)
	return n.Add(Fee(n, rate))
}

// QuantityFromNotional inverts Notional, truncating:
// truncate(notional * 10^(baseDecimals-quoteDecimals) / price).
func QuantityFromNotional(notional, price decimal.Decimal, baseDecimals, quoteDecimals int32) decimal.Decimal {
	if !price.IsPositive() {
		return Zero
	}
	return Quo(notional.Shift(baseDecimals-quoteDecimals), price)
}

// Percent returns pct percent of a, truncated.
func Percent(a decimal.Decimal, pct int32) decimal.Decimal {
	return Quo(a.Mul(decimal.NewFromInt32(pct)), hundred)
}

// ToFundamental scales a human readable amount to fundamental units.
func ToFundamental(a decimal.Decimal, decimals int32) decimal.Decimal {
	return a.Shift(decimals).Truncate(0)
}

// FromFundamental is the inverse of ToFundamental.
func FromFundamental(a decimal.Decimal, decimals int32) decimal.Decimal {
	return a.Shift(-decimals)
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
