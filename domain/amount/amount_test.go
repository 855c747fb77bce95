package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNotionalScalesByDecimals(t *testing.T) {
	// 0.01 BTC (8 decimals) at 17.55 USDC (6 decimals)
	qty := ToFundamental(d("0.01"), 8)
	require.Equal(t, "1000000", qty.String())

	n := Notional(qty, d("17.55"), 8, 6)
	assert.Equal(t, "175500", n.String())

	// 18 decimal base into 6 decimal quote truncates
	n = Notional(d("1"), d("17.55"), 18, 6)
	assert.Equal(t, "0", n.String())
}

func TestFeeTruncates(t *testing.T) {
	assert.Equal(t, "1755", Fee(d("175500"), 10_000).String())
	assert.Equal(t, "0", Fee(d("99"), 10_000).String())
	assert.Equal(t, "0", Fee(d("175500"), 0).String())
	assert.Equal(t, "177255", NotionalPlusFee(d("1000000"), d("17.55"), 8, 6, 10_000).String())
}

func TestQuantityFromNotionalInvertsNotional(t *testing.T) {
	q := QuantityFromNotional(d("175500"), d("17.55"), 8, 6)
	assert.Equal(t, "1000000", q.String())

	// not exactly divisible: truncated
	q = QuantityFromNotional(d("100"), d("3"), 0, 0)
	assert.Equal(t, "33", q.String())

	assert.True(t, QuantityFromNotional(d("100"), Zero, 0, 0).IsZero())
}

func TestNotionalWithoutFee(t *testing.T) {
	assert.Equal(t, "200", NotionalWithoutFee(d("204"), 20_000).String())
	assert.Equal(t, "204", NotionalWithoutFee(d("204"), 0).String())
}

func TestAdjustForFee(t *testing.T) {
	adjusted := AdjustForFee(d("1020"), 20_000)
	assert.Equal(t, "1000", adjusted.String())
	assert.True(t, adjusted.Add(Fee(adjusted, 20_000)).LessThanOrEqual(d("1020")))
}

func TestFeeRate(t *testing.T) {
	assert.True(t, FeeRate(0).Valid())
	assert.True(t, FeeRateMax.Valid())
	assert.False(t, FeeRate(-1).Valid())
	assert.False(t, (FeeRateMax + 1).Valid())

	assert.Equal(t, FeeRate(10_000), FeeRateFromPercent(d("1")))
	assert.Equal(t, FeeRate(5_000), FeeRateFromPercent(d("0.5")))
	assert.Equal(t, "1%", FeeRate(10_000).String())
}

func TestPercentAndQuo(t *testing.T) {
	assert.Equal(t, "50", Percent(d("101"), 50).String())
	assert.Equal(t, "-3", Quo(d("-7"), d("2")).String())
	assert.True(t, Quo(d("7"), Zero).IsZero())
}
