package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeRate is a fixed-point rate where FeeRateMax means 100%.
// 1% is therefore 10_000.
type FeeRate int64

const FeeRateMax FeeRate = 1_000_000

var feeRateMax = decimal.NewFromInt(int64(FeeRateMax))

func (r FeeRate) Valid() bool {
	return r >= 0 && r <= FeeRateMax
}

func (r FeeRate) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(r))
}

// Percent renders the rate in percent, 10_000 -> "1".
func (r FeeRate) Percent() decimal.Decimal {
	return r.Decimal().Mul(hundred).Div(feeRateMax)
}

func (r FeeRate) String() string {
	return fmt.Sprintf("%s%%", r.Percent().String())
}

// FeeRateFromPercent parses a percentage ("0.5" -> 5_000), truncating
// anything finer than the fixed-point resolution.
func FeeRateFromPercent(pct decimal.Decimal) FeeRate {
	return FeeRate(pct.Mul(feeRateMax).Div(hundred).IntPart())
}

// FeeRates are the maker and taker rates in force for new orders.
type FeeRates struct {
	Maker FeeRate `json:"maker" yaml:"maker"`
	Taker FeeRate `json:"taker" yaml:"taker"`
}

func (f FeeRates) Valid() bool {
	return f.Maker.Valid() && f.Taker.Valid()
}

// Fee is notional * rate / FeeRateMax, truncated.
func Fee(notional decimal.Decimal, rate FeeRate) decimal.Decimal {
	if rate == 0 {
		return Zero
	}
	return Quo(notional.Mul(rate.Decimal()), feeRateMax)
}

// NotionalWithoutFee removes the fee from an amount that already includes
// it: total - total*rate/(FeeRateMax+rate). With total 204 and a 2% rate
// the result is 200.
func NotionalWithoutFee(total decimal.Decimal, rate FeeRate) decimal.Decimal {
	if rate == 0 {
		return total
	}
	fee := Quo(total.Mul(rate.Decimal()), feeRateMax.Add(rate.Decimal()))
	return total.Sub(fee)
}

// AdjustForFee scales a spendable quote amount down so that amount plus the
// taker fee on it stays within limit.
func AdjustForFee(limit decimal.Decimal, rate FeeRate) decimal.Decimal {
	return Quo(limit.Mul(feeRateMax), feeRateMax.Add(rate.Decimal()))
}
