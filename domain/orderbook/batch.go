package orderbook

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

type BalanceKey struct {
	Account AccountID
	Asset   Asset
}

// BalanceDeltas accumulates signed balance changes per account and asset.
type BalanceDeltas map[BalanceKey]decimal.Decimal

func (d BalanceDeltas) Add(account AccountID, asset Asset, delta decimal.Decimal) {
	k := BalanceKey{Account: account, Asset: asset}
	if cur, ok := d[k]; ok {
		d[k] = cur.Add(delta)
		return
	}
	d[k] = delta
}

func (d BalanceDeltas) Get(account AccountID, asset Asset) decimal.Decimal {
	if v, ok := d[BalanceKey{Account: account, Asset: asset}]; ok {
		return v
	}
	return amount.Zero
}

func (d BalanceDeltas) Merge(other BalanceDeltas) {
	for k, v := range other {
		d.Add(k.Account, k.Asset, v)
	}
}

// Keys returns the touched (account, asset) pairs in account, asset order.
func (d BalanceDeltas) Keys() []BalanceKey {
	keys := make([]BalanceKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b BalanceKey) int {
		if c := cmp.Compare(a.Account, b.Account); c != 0 {
			return c
		}
		return cmp.Compare(a.Asset, b.Asset)
	})
	return keys
}

func (d BalanceDeltas) Changes() []BalanceChange {
	keys := d.Keys()
	changes := make([]BalanceChange, 0, len(keys))
	for _, k := range keys {
		changes = append(changes, BalanceChange{Account: k.Account, Asset: k.Asset, Delta: d[k]})
	}
	return changes
}

// BatchResult carries everything one order batch did to a market.
type BatchResult struct {
	OrdersChanged        []OrderChanged
	OrdersChangeRejected []OrderChangeRejected
	Trades               []Trade
	Deltas               BalanceDeltas
}

// ApplyOrderBatch cancels first, then places each order in turn, settling
// every execution into trades and balance deltas. Percentage market orders
// must already be sized.
func (m *Market) ApplyOrderBatch(account AccountID, toAdd []Order, toCancel []CancelOrder, rates amount.FeeRates, now int64) BatchResult {
	res := BatchResult{Deltas: make(BalanceDeltas)}

	for _, c := range toCancel {
		if reason := m.CancelOrder(account, c.Guid); reason != RejectNone {
			res.OrdersChangeRejected = append(res.OrdersChangeRejected, OrderChangeRejected{Guid: c.Guid, Reason: reason})
			continue
		}
		res.OrdersChanged = append(res.OrdersChanged, OrderChanged{Guid: c.Guid, Disposition: Canceled})
	}

	for _, order := range toAdd {
		result := m.AddOrder(account, order, rates)

		change := OrderChanged{Guid: order.OrderGuid(), Disposition: result.Disposition}
		mo, isMarket := order.(*MarketOrder)
		if isMarket && mo.HasPercentage() {
			change.NewQuantity = quantityPtr(mo.Amount)
		}
		res.OrdersChanged = append(res.OrdersChanged, change)

		// Only a fully matched 100% market buy with nothing reserved elsewhere
		// sweeps its rounding residue into the last fee.
		var sweep *decimal.Decimal
		if isMarket && mo.Side == Buy && mo.Percentage == 100 && mo.MaxAvailable.Valid && result.Disposition == Filled {
			sweep = &mo.MaxAvailable.Decimal
		}

		for i, e := range result.Executions {
			var available *decimal.Decimal
			if sweep != nil && i == len(result.Executions)-1 {
				v := sweep.Add(res.Deltas.Get(account, m.ID.Quote()))
				available = &v
			}
			m.settle(account, order, e, rates, available, now, &res)
		}
	}
	return res
}

func (m *Market) settle(account AccountID, taker Order, e Execution, rates amount.FeeRates, available *decimal.Decimal, now int64, res *BatchResult) {
	notional := amount.Notional(e.Amount, e.Price, m.BaseDecimals, m.QuoteDecimals)
	base, quote := m.ID.Assets()

	trade := Trade{
		MarketID:  m.ID,
		Amount:    e.Amount,
		LevelIx:   e.LevelIx,
		Price:     e.Price,
		CreatedAt: now,
	}
	var buyer, seller AccountID

	if taker.OrderSide() == Buy {
		buyer, seller = account, e.MakerAccount
		trade.BuyOrderGuid, trade.SellOrderGuid = taker.OrderGuid(), e.MakerGuid
		trade.BuyerFee = amount.Fee(notional, rates.Taker)
		trade.SellerFee = amount.Fee(notional, e.MakerFeeRate)

		if available != nil {
			dust := available.Sub(notional.Add(trade.BuyerFee))
			if dust.LessThanOrEqual(trade.BuyerFee) && trade.BuyerFee.Add(dust).Sign() >= 0 {
				m.log.Debug("sweeping dust into buyer fee", "market", m.ID, "guid", taker.OrderGuid(), "dust", dust)
				trade.BuyerFee = trade.BuyerFee.Add(dust)
			}
		}
	} else {
		buyer, seller = e.MakerAccount, account
		trade.BuyOrderGuid, trade.SellOrderGuid = e.MakerGuid, taker.OrderGuid()
		trade.BuyerFee = amount.Fee(notional, e.MakerFeeRate)
		trade.SellerFee = amount.Fee(notional, rates.Taker)
	}
	res.Trades = append(res.Trades, trade)

	makerChange := OrderChanged{Guid: e.MakerGuid, Disposition: Filled}
	if !e.MakerExhausted {
		makerChange.Disposition = PartiallyFilled
		makerChange.NewQuantity = quantityPtr(e.MakerRemaining)
	}
	res.OrdersChanged = append(res.OrdersChanged, makerChange)

	res.Deltas.Add(buyer, quote, notional.Add(trade.BuyerFee).Neg())
	res.Deltas.Add(seller, base, e.Amount.Neg())
	res.Deltas.Add(buyer, base, e.Amount)
	res.Deltas.Add(seller, quote, notional.Sub(trade.SellerFee))
}
