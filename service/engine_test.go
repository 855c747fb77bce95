package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sequencer/domain/amount"
	"sequencer/domain/ledger"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

type harness struct {
	t   *testing.T
	e   *Engine
	seq uint64
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, e: NewEngine(ledger.New())}
}

func (h *harness) do(req *protocol.Request) *protocol.Response {
	h.t.Helper()
	h.seq++
	resp := h.e.Process(h.seq, 1_700_000_000_000+int64(h.seq), req)
	require.Equal(h.t, h.seq, resp.Sequence)
	return resp
}

func (h *harness) ok(req *protocol.Request) *protocol.Response {
	h.t.Helper()
	resp := h.do(req)
	require.Equal(h.t, protocol.ErrorNone, resp.Error)
	return resp
}

func (h *harness) market(id orderbook.MarketID, tick string, bd, qd int32) {
	h.t.Helper()
	h.ok(&protocol.Request{Type: protocol.TypeAddMarket, AddMarket: &protocol.AddMarket{
		MarketID:          id,
		TickSize:          decimal.RequireFromString(tick),
		MaxOrdersPerLevel: 10,
		BaseDecimals:      bd,
		QuoteDecimals:     qd,
	}})
}

func (h *harness) fees(maker, taker amount.FeeRate) {
	h.t.Helper()
	h.ok(&protocol.Request{Type: protocol.TypeSetFeeRates, FeeRates: &amount.FeeRates{Maker: maker, Taker: taker}})
}

func (h *harness) deposit(account orderbook.AccountID, asset orderbook.Asset, n int64) {
	h.t.Helper()
	h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		Deposits: []protocol.Deposit{{Account: account, Asset: asset, Amount: d(n)}},
	}})
}

func (h *harness) orders(id orderbook.MarketID, account orderbook.AccountID, orders ...orderbook.Order) *protocol.Response {
	h.t.Helper()
	return h.do(&protocol.Request{Type: protocol.TypeApplyOrderBatch, OrderBatch: &protocol.OrderBatch{
		MarketID:    id,
		Account:     account,
		OrdersToAdd: orders,
	}})
}

func (h *harness) balance(account orderbook.AccountID, asset orderbook.Asset) string {
	return h.e.State().Balance(account, asset).String()
}

func (h *harness) book(id orderbook.MarketID) *orderbook.Market {
	m, ok := h.e.State().Market(id)
	require.True(h.t, ok)
	return m
}

func limit(guid orderbook.OrderGuid, side orderbook.Side, qty int64, ix int) *orderbook.LimitOrder {
	return &orderbook.LimitOrder{Guid: guid, Side: side, Amount: d(qty), LevelIx: ix}
}

func marketOrder(guid orderbook.OrderGuid, side orderbook.Side, qty int64) *orderbook.MarketOrder {
	return &orderbook.MarketOrder{Guid: guid, Side: side, Amount: d(qty)}
}

func dispositions(changes []orderbook.OrderChanged) map[orderbook.OrderGuid]orderbook.Disposition {
	out := make(map[orderbook.OrderGuid]orderbook.Disposition, len(changes))
	for _, c := range changes {
		out[c.Guid] = c.Disposition
	}
	return out
}

func TestMarketBuyMatchesLevelInFifoOrder(t *testing.T) {
	h := newHarness(t)
	h.market("BTC/USDC", "0.001", 8, 6)
	h.deposit(1, "BTC", 2_000_000)
	h.deposit(2, "USDC", 351_000)

	resp := h.orders("BTC/USDC", 1, limit(1, orderbook.Sell, 1_000_000, 17_550), limit(2, orderbook.Sell, 1_000_000, 17_550))
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, 17_550, resp.BidOfferState.BestOfferIx)

	resp = h.orders("BTC/USDC", 2, &orderbook.MarketOrder{Guid: 3, Side: orderbook.Buy, Percentage: 100})
	require.Equal(t, protocol.ErrorNone, resp.Error)

	require.Len(t, resp.TradesCreated, 2)
	for i, tr := range resp.TradesCreated {
		assert.Equal(t, orderbook.OrderGuid(i+1), tr.SellOrderGuid)
		assert.Equal(t, orderbook.OrderGuid(3), tr.BuyOrderGuid)
		assert.Equal(t, "17.55", tr.Price.String())
		assert.Equal(t, "1000000", tr.Amount.String())
		assert.Equal(t, int64(1_700_000_000_000+5), tr.CreatedAt)
	}

	require.Len(t, resp.OrdersChanged, 3)
	assert.Equal(t, orderbook.OrderGuid(3), resp.OrdersChanged[0].Guid)
	assert.Equal(t, orderbook.Filled, resp.OrdersChanged[0].Disposition)
	assert.Equal(t, "2000000", resp.OrdersChanged[0].NewQuantity.String())
	assert.Equal(t, orderbook.Filled, resp.OrdersChanged[1].Disposition)
	assert.Equal(t, orderbook.Filled, resp.OrdersChanged[2].Disposition)

	m := h.book("BTC/USDC")
	assert.Nil(t, m.Level(17_550))
	assert.Zero(t, m.OrderCount())
	assert.Equal(t, -1, resp.BidOfferState.BestOfferIx)

	assert.Equal(t, "0", h.balance(1, "BTC"))
	assert.Equal(t, "351000", h.balance(1, "USDC"))
	assert.Equal(t, "2000000", h.balance(2, "BTC"))
	assert.Equal(t, "0", h.balance(2, "USDC"))

	require.Len(t, resp.LimitsUpdated, 2)
	assert.Equal(t, orderbook.AccountID(1), resp.LimitsUpdated[0].Account)
	assert.Equal(t, "351000", resp.LimitsUpdated[0].Quote.String())
	assert.Equal(t, orderbook.AccountID(2), resp.LimitsUpdated[1].Account)
	assert.Equal(t, "2000000", resp.LimitsUpdated[1].Base.String())
}

func TestExceedsLimitAcrossMarkets(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.market("CCC/BBB", "1", 0, 0)
	h.deposit(1, "BBB", 100)

	resp := h.orders("AAA/BBB", 1, limit(1, orderbook.Buy, 11, 10))
	assert.Equal(t, protocol.ErrorExceedsLimit, resp.Error)
	assert.Zero(t, h.book("AAA/BBB").OrderCount())

	h.ok(&protocol.Request{Type: protocol.TypeApplyOrderBatch, OrderBatch: &protocol.OrderBatch{
		MarketID: "AAA/BBB", Account: 1, OrdersToAdd: protocol.Orders{limit(1, orderbook.Buy, 5, 10)},
	}})
	assert.Equal(t, "50", h.e.State().Consumed(1, "BBB", "AAA/BBB").String())

	resp = h.orders("CCC/BBB", 1, limit(2, orderbook.Buy, 6, 10))
	assert.Equal(t, protocol.ErrorExceedsLimit, resp.Error)

	resp = h.orders("CCC/BBB", 1, limit(2, orderbook.Buy, 5, 10))
	require.Equal(t, protocol.ErrorNone, resp.Error)
	require.Len(t, resp.LimitsUpdated, 1)
	assert.Equal(t, "0", resp.LimitsUpdated[0].Quote.String())

	// a cancel in the same batch frees its reservation
	resp = h.do(&protocol.Request{Type: protocol.TypeApplyOrderBatch, OrderBatch: &protocol.OrderBatch{
		MarketID:       "AAA/BBB",
		Account:        1,
		OrdersToAdd:    protocol.Orders{limit(3, orderbook.Buy, 5, 10)},
		OrdersToCancel: []orderbook.CancelOrder{{Guid: 1}},
	}})
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, map[orderbook.OrderGuid]orderbook.Disposition{1: orderbook.Canceled, 3: orderbook.Accepted}, dispositions(resp.OrdersChanged))
}

func TestCancelRejections(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.deposit(1, "AAA", 5)
	h.orders("AAA/BBB", 1, limit(1, orderbook.Sell, 5, 10))

	resp := h.do(&protocol.Request{Type: protocol.TypeApplyOrderBatch, OrderBatch: &protocol.OrderBatch{
		MarketID:       "AAA/BBB",
		Account:        2,
		OrdersToCancel: []orderbook.CancelOrder{{Guid: 1}, {Guid: 99}},
	}})
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, []orderbook.OrderChangeRejected{
		{Guid: 1, Reason: orderbook.NotForUser},
		{Guid: 99, Reason: orderbook.DoesNotExist},
	}, resp.OrdersChangeRejected)
	assert.Equal(t, 1, h.book("AAA/BBB").OrderCount())
}

func TestRestingOrderKeepsAcceptedFeeRate(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.fees(10_000, 20_000)
	h.deposit(1, "BBB", 1_000)
	h.deposit(2, "AAA", 10)

	resp := h.orders("AAA/BBB", 1, limit(1, orderbook.Buy, 10, 10))
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, "101", h.e.State().Consumed(1, "BBB", "AAA/BBB").String())

	h.fees(0, 0)
	resp = h.orders("AAA/BBB", 2, marketOrder(2, orderbook.Sell, 10))
	require.Len(t, resp.TradesCreated, 1)
	assert.Equal(t, "1", resp.TradesCreated[0].BuyerFee.String())
	assert.Equal(t, "0", resp.TradesCreated[0].SellerFee.String())
	assert.Equal(t, "899", h.balance(1, "BBB"))
	assert.Equal(t, "100", h.balance(2, "BBB"))
}

func TestPercentageSellSizesFromFreeBalance(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.deposit(1, "BBB", 1_000)
	h.deposit(2, "AAA", 10)
	h.orders("AAA/BBB", 1, limit(1, orderbook.Buy, 20, 10))

	order := &orderbook.MarketOrder{Guid: 2, Side: orderbook.Sell, Percentage: 50}
	resp := h.orders("AAA/BBB", 2, order)
	require.Equal(t, protocol.ErrorNone, resp.Error)
	require.Len(t, resp.TradesCreated, 1)
	assert.Equal(t, "5", resp.TradesCreated[0].Amount.String())
	assert.Equal(t, "5", resp.OrdersChanged[0].NewQuantity.String())
	assert.True(t, order.Amount.IsZero(), "request must not be mutated")

	resp = h.orders("AAA/BBB", 2, &orderbook.MarketOrder{Guid: 3, Side: orderbook.Sell, Percentage: 250})
	require.Len(t, resp.TradesCreated, 1)
	assert.Equal(t, "5", resp.TradesCreated[0].Amount.String())
	assert.Equal(t, "0", h.balance(2, "AAA"))
}

func TestWithdrawals(t *testing.T) {
	h := newHarness(t)
	h.ok(&protocol.Request{Type: protocol.TypeSetWithdrawalFees, WithdrawalFees: []protocol.WithdrawalFee{{Asset: "BBB", Fee: d(2)}}})
	h.deposit(1, "BBB", 100)

	resp := h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		Withdrawals: []protocol.Withdrawal{
			{Account: 1, Asset: "BBB", Amount: d(2), ExternalGuid: "at-fee"},
			{Account: 1, Asset: "BBB", Amount: d(101), ExternalGuid: "too-much"},
			{Account: 1, Asset: "BBB", Amount: d(40), ExternalGuid: "w1"},
			{Account: 1, Asset: "BBB", ExternalGuid: "rest"},
		},
	}})
	assert.Equal(t, []protocol.WithdrawalCreated{
		{ExternalGuid: "w1", Fee: d(2)},
		{ExternalGuid: "rest", Fee: d(2)},
	}, resp.WithdrawalsCreated)
	assert.Equal(t, "0", h.balance(1, "BBB"))
	require.Len(t, resp.BalancesChanged, 1)
	assert.Equal(t, "-100", resp.BalancesChanged[0].Delta.String())

	h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		FailedWithdrawals: []protocol.FailedWithdrawal{{Account: 1, Asset: "BBB", Amount: d(40)}},
	}})
	assert.Equal(t, "40", h.balance(1, "BBB"))
}

func TestWithdrawalAutoReducesRestingSells(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.deposit(1, "AAA", 10)
	h.orders("AAA/BBB", 1, limit(1, orderbook.Sell, 6, 20), limit(2, orderbook.Sell, 4, 30))

	resp := h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		Withdrawals: []protocol.Withdrawal{{Account: 1, Asset: "AAA", Amount: d(5), ExternalGuid: "w"}},
	}})

	require.Len(t, resp.OrdersChanged, 2)
	assert.Equal(t, orderbook.OrderGuid(1), resp.OrdersChanged[0].Guid)
	assert.Equal(t, orderbook.AutoReduced, resp.OrdersChanged[0].Disposition)
	assert.Equal(t, "5", resp.OrdersChanged[0].NewQuantity.String())
	assert.Equal(t, orderbook.OrderGuid(2), resp.OrdersChanged[1].Guid)
	assert.Equal(t, "0", resp.OrdersChanged[1].NewQuantity.String())

	s := h.e.State()
	assert.Equal(t, "5", s.TotalConsumed(1, "AAA").String())
	assert.False(t, s.TotalConsumed(1, "AAA").GreaterThan(s.Balance(1, "AAA")))
	assert.Equal(t, 1, h.book("AAA/BBB").OrderCount())
	require.Len(t, resp.LimitsUpdated, 1)
	assert.Equal(t, "0", resp.LimitsUpdated[0].Base.String())
}

func TestAutoReduceSpansMarketsInIdOrder(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.market("CCC/BBB", "1", 0, 0)
	h.deposit(1, "BBB", 100)
	h.orders("AAA/BBB", 1, limit(1, orderbook.Buy, 3, 10))
	h.orders("CCC/BBB", 1, limit(2, orderbook.Buy, 7, 10))

	resp := h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		Withdrawals: []protocol.Withdrawal{{Account: 1, Asset: "BBB", Amount: d(50), ExternalGuid: "w"}},
	}})

	require.Len(t, resp.OrdersChanged, 1)
	assert.Equal(t, orderbook.OrderGuid(2), resp.OrdersChanged[0].Guid)
	assert.Equal(t, "2", resp.OrdersChanged[0].NewQuantity.String())
	assert.Equal(t, "30", h.e.State().Consumed(1, "BBB", "AAA/BBB").String())
	assert.Equal(t, "20", h.e.State().Consumed(1, "BBB", "CCC/BBB").String())
}

func TestFailedSettlementMayDriveBalancesNegative(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)

	resp := h.ok(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
		FailedSettlements: []protocol.FailedSettlement{{
			BuyAccount:  1,
			SellAccount: 2,
			MarketID:    "AAA/BBB",
			Trade:       orderbook.Trade{Amount: d(3), LevelIx: 10, BuyerFee: d(2), SellerFee: d(1)},
		}, {
			BuyAccount: 1, SellAccount: 2, MarketID: "ZZZ/BBB",
			Trade: orderbook.Trade{Amount: d(3), LevelIx: 10},
		}},
	}})

	assert.Equal(t, "-3", h.balance(1, "AAA"))
	assert.Equal(t, "32", h.balance(1, "BBB"))
	assert.Equal(t, "3", h.balance(2, "AAA"))
	assert.Equal(t, "-29", h.balance(2, "BBB"))
	assert.Len(t, resp.BalancesChanged, 4)
}

func TestBackToBackRoutesThroughBridge(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.market("CCC/BBB", "1", 0, 0)
	h.deposit(9, "BBB", 1_000)
	h.deposit(9, "CCC", 100)
	h.deposit(1, "AAA", 10)
	h.orders("AAA/BBB", 9, limit(1, orderbook.Buy, 10, 10))
	h.orders("CCC/BBB", 9, limit(2, orderbook.Sell, 50, 2))

	resp := h.orders("AAA/BBB", 1, &orderbook.BackToBackOrder{Guid: 3, Side: orderbook.Sell, Amount: d(10), SecondMarketID: "CCC/BBB"})
	require.Equal(t, protocol.ErrorNone, resp.Error)

	require.Len(t, resp.TradesCreated, 2)
	assert.Equal(t, orderbook.MarketID("AAA/BBB"), resp.TradesCreated[0].MarketID)
	assert.Equal(t, "10", resp.TradesCreated[0].Amount.String())
	assert.Equal(t, orderbook.MarketID("CCC/BBB"), resp.TradesCreated[1].MarketID)
	assert.Equal(t, "50", resp.TradesCreated[1].Amount.String())

	last := resp.OrdersChanged[len(resp.OrdersChanged)-1]
	assert.Equal(t, orderbook.OrderGuid(3), last.Guid)
	assert.Equal(t, orderbook.Filled, last.Disposition)

	assert.Equal(t, "0", h.balance(1, "AAA"))
	assert.Equal(t, "0", h.balance(1, "BBB"))
	assert.Equal(t, "50", h.balance(1, "CCC"))
}

func TestBackToBackSecondLegFollowsFirstLegFill(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.market("CCC/BBB", "1", 0, 0)
	h.deposit(9, "BBB", 1_000)
	h.deposit(9, "CCC", 100)
	h.deposit(1, "AAA", 10)
	h.orders("AAA/BBB", 9, limit(1, orderbook.Buy, 6, 10))
	h.orders("CCC/BBB", 9, limit(2, orderbook.Sell, 50, 2))

	resp := h.orders("AAA/BBB", 1, &orderbook.BackToBackOrder{Guid: 3, Side: orderbook.Sell, Amount: d(10), SecondMarketID: "CCC/BBB"})
	require.Equal(t, protocol.ErrorNone, resp.Error)

	require.Len(t, resp.TradesCreated, 2)
	assert.Equal(t, "6", resp.TradesCreated[0].Amount.String())
	assert.Equal(t, "30", resp.TradesCreated[1].Amount.String())
	last := resp.OrdersChanged[len(resp.OrdersChanged)-1]
	assert.Equal(t, orderbook.PartiallyFilled, last.Disposition)
	assert.Equal(t, "4", h.balance(1, "AAA"))
	assert.Equal(t, "30", h.balance(1, "CCC"))
}

func TestBackToBackValidation(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.market("BBB/AAA", "1", 0, 0)
	h.deposit(1, "AAA", 10)
	b2b := func(second orderbook.MarketID) *orderbook.BackToBackOrder {
		return &orderbook.BackToBackOrder{Guid: 1, Side: orderbook.Sell, Amount: d(1), SecondMarketID: second}
	}

	resp := h.orders("AAA/BBB", 1, b2b("CCC/BBB"))
	assert.Equal(t, protocol.ErrorUnknownMarket, resp.Error)

	resp = h.orders("AAA/BBB", 1, b2b("BBB/AAA"))
	assert.Equal(t, protocol.ErrorInvalidBackToBackOrder, resp.Error)

	resp = h.orders("AAA/BBB", 1, b2b("BBB/AAA"), limit(2, orderbook.Sell, 1, 10))
	assert.Equal(t, protocol.ErrorInvalidBackToBackOrder, resp.Error)
	assert.Zero(t, h.book("AAA/BBB").OrderCount())
}

func TestAdminRequests(t *testing.T) {
	h := newHarness(t)
	add := func(tick string, bd int32) *protocol.Response {
		return h.do(&protocol.Request{Type: protocol.TypeAddMarket, AddMarket: &protocol.AddMarket{
			MarketID: "AAA/BBB", TickSize: decimal.RequireFromString(tick), MaxOrdersPerLevel: 4, BaseDecimals: bd,
		}})
	}

	assert.Equal(t, protocol.ErrorUnknownRequest, add("0", 0).Error)
	resp := add("0.5", 2)
	require.Equal(t, protocol.ErrorNone, resp.Error)
	require.Len(t, resp.MarketsCreated, 1)
	assert.Equal(t, protocol.ErrorNone, add("0.5", 2).Error)
	assert.Equal(t, protocol.ErrorMarketExists, add("0.5", 3).Error)
	assert.Equal(t, []orderbook.MarketID{"AAA/BBB"}, h.e.State().MarketIDs())

	resp = h.do(&protocol.Request{Type: protocol.TypeSetFeeRates, FeeRates: &amount.FeeRates{Maker: 1_000_001}})
	assert.Equal(t, protocol.ErrorInvalidFeeRate, resp.Error)

	resp = h.do(&protocol.Request{Type: protocol.TypeSetWithdrawalFees})
	assert.Equal(t, protocol.ErrorInvalidWithdrawalFee, resp.Error)

	resp = h.do(&protocol.Request{Type: protocol.TypeSetMarketMinFees, MarketMinFees: []protocol.MarketMinFee{
		{MarketID: "AAA/BBB", MinFee: d(7)},
		{MarketID: "XXX/YYY", MinFee: d(1)},
	}})
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, "7", h.book("AAA/BBB").MinFee.String())

	resp = h.do(&protocol.Request{Guid: "g", Type: "Bogus"})
	assert.Equal(t, protocol.ErrorUnknownRequest, resp.Error)
	assert.Equal(t, "g", resp.Guid)

	resp = h.do(&protocol.Request{Type: protocol.TypeApplyOrderBatch, OrderBatch: &protocol.OrderBatch{MarketID: "NOPE/BBB"}})
	assert.Equal(t, protocol.ErrorUnknownMarket, resp.Error)
}

func TestBelowMinFeeIsRejectedNotFailed(t *testing.T) {
	h := newHarness(t)
	h.market("AAA/BBB", "1", 0, 0)
	h.fees(10_000, 10_000)
	h.ok(&protocol.Request{Type: protocol.TypeSetMarketMinFees, MarketMinFees: []protocol.MarketMinFee{{MarketID: "AAA/BBB", MinFee: d(1)}}})
	h.deposit(1, "BBB", 10_000)

	resp := h.orders("AAA/BBB", 1, limit(1, orderbook.Buy, 5, 10))
	require.Equal(t, protocol.ErrorNone, resp.Error)
	assert.Equal(t, orderbook.Rejected, resp.OrdersChanged[0].Disposition)

	resp = h.orders("AAA/BBB", 1, limit(2, orderbook.Buy, 10, 10))
	assert.Equal(t, orderbook.Accepted, resp.OrdersChanged[0].Disposition)
}

// script runs a fixed mixed workload and returns every response.
func script(h *harness) []*protocol.Response {
	h.market("AAA/BBB", "1", 0, 0)
	h.market("CCC/BBB", "1", 0, 0)
	h.fees(1_000, 2_000)
	h.deposit(1, "AAA", 50)
	h.deposit(2, "BBB", 5_000)
	h.deposit(3, "CCC", 40)

	var out []*protocol.Response
	out = append(out,
		h.orders("AAA/BBB", 1, limit(1, orderbook.Sell, 20, 12), limit(2, orderbook.Sell, 20, 15)),
		h.orders("CCC/BBB", 3, limit(3, orderbook.Sell, 40, 30)),
		h.orders("AAA/BBB", 2, limit(4, orderbook.Buy, 25, 13)),
		h.orders("CCC/BBB", 2, marketOrder(5, orderbook.Buy, 10)),
		h.do(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
			Withdrawals: []protocol.Withdrawal{{Account: 2, Asset: "BBB", Amount: d(4_400), ExternalGuid: "w"}},
		}}),
		h.orders("AAA/BBB", 2, &orderbook.MarketOrder{Guid: 6, Side: orderbook.Buy, Percentage: 100}),
	)
	return out
}

func TestReplayIsDeterministic(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	ra, rb := script(a), script(b)
	require.Len(t, rb, len(ra))
	for i := range ra {
		same, err := protocol.SameOutcome(ra[i], rb[i])
		require.NoError(t, err)
		assert.True(t, same, "response %d", i)
	}
	assert.True(t, a.e.State().Equal(b.e.State()))
}

func TestCheckpointedEngineContinuesIdentically(t *testing.T) {
	h := newHarness(t)
	script(h)

	restored, err := ledger.Restore(h.e.State().Checkpoint())
	require.NoError(t, err)
	require.True(t, h.e.State().Equal(restored))

	twin := &harness{t: t, e: NewEngine(restored), seq: h.seq}
	for _, next := range []func(*harness) *protocol.Response{
		func(x *harness) *protocol.Response { return x.orders("AAA/BBB", 1, marketOrder(10, orderbook.Sell, 5)) },
		func(x *harness) *protocol.Response { return x.orders("CCC/BBB", 3, limit(11, orderbook.Sell, 1, 31)) },
		func(x *harness) *protocol.Response {
			return x.do(&protocol.Request{Type: protocol.TypeApplyBalanceBatch, BalanceBatch: &protocol.BalanceBatch{
				Withdrawals: []protocol.Withdrawal{{Account: 1, Asset: "AAA", ExternalGuid: "all"}},
			}})
		},
	} {
		same, err := protocol.SameOutcome(next(h), next(twin))
		require.NoError(t, err)
		assert.True(t, same)
	}
	assert.True(t, h.e.State().Equal(twin.e.State()))
}
