package protocol

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sequencer/domain/orderbook"
)

func TestOrderBatchKeepsVariants(t *testing.T) {
	req := &Request{
		Guid: "g-1",
		Type: TypeApplyOrderBatch,
		OrderBatch: &OrderBatch{
			MarketID: "BTC/USDC",
			Account:  9,
			OrdersToAdd: Orders{
				&orderbook.LimitOrder{Guid: 1, Side: orderbook.Buy, Amount: decimal.NewFromInt(5), LevelIx: 120},
				&orderbook.MarketOrder{Guid: 2, Side: orderbook.Sell, Percentage: 50},
				&orderbook.BackToBackOrder{Guid: 3, Side: orderbook.Buy, Amount: decimal.NewFromInt(7), SecondMarketID: "ETH/BTC"},
			},
			OrdersToCancel: []orderbook.CancelOrder{{Guid: 4}},
		},
	}

	b, err := EncodeRequest(req)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"backToBack"`)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	require.Len(t, got.OrderBatch.OrdersToAdd, 3)

	lo, ok := got.OrderBatch.OrdersToAdd[0].(*orderbook.LimitOrder)
	require.True(t, ok)
	assert.Equal(t, 120, lo.LevelIx)
	assert.Equal(t, "5", lo.Amount.String())

	mo, ok := got.OrderBatch.OrdersToAdd[1].(*orderbook.MarketOrder)
	require.True(t, ok)
	assert.Equal(t, orderbook.Sell, mo.Side)
	assert.True(t, mo.HasPercentage())

	bb, ok := got.OrderBatch.OrdersToAdd[2].(*orderbook.BackToBackOrder)
	require.True(t, ok)
	assert.Equal(t, orderbook.MarketID("ETH/BTC"), bb.SecondMarketID)
	assert.Equal(t, []orderbook.CancelOrder{{Guid: 4}}, got.OrderBatch.OrdersToCancel)
}

func TestDecodeRejectsUnknownOrderType(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"ApplyOrderBatch","orderBatch":{"ordersToAdd":[{"type":"stop","order":{}}]}}`))
	assert.Error(t, err)

	req, err := DecodeRequest([]byte(`not json`))
	assert.Error(t, err)
	require.NotNil(t, req)
	assert.Empty(t, req.Type)
}

func TestSameOutcomeIgnoresTimestamps(t *testing.T) {
	q := decimal.RequireFromString("2.50")
	a := &Response{
		Guid: "x", Sequence: 4, Error: ErrorExceedsLimit,
		OrdersChanged: []orderbook.OrderChanged{{Guid: 1, Disposition: orderbook.PartiallyFilled, NewQuantity: &q}},
		CreatedAt:     100, ProcessingTime: 7,
	}
	b, err := EncodeResponse(a)
	require.NoError(t, err)
	decoded, err := DecodeResponse(b)
	require.NoError(t, err)
	decoded.CreatedAt = 200
	decoded.ProcessingTime = 1

	same, err := SameOutcome(a, decoded)
	require.NoError(t, err)
	assert.True(t, same)

	decoded.Error = ErrorNone
	same, err = SameOutcome(a, decoded)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestErrorText(t *testing.T) {
	var e Error
	require.NoError(t, e.UnmarshalText([]byte("InvalidMarketMinFee")))
	assert.Equal(t, ErrorInvalidMarketMinFee, e)
	assert.Error(t, e.UnmarshalText([]byte("Bogus")))
}
