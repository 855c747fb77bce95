package service

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/ledger"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

type limitKey struct {
	account orderbook.AccountID
	market  orderbook.MarketID
}

// effects gathers what one request did, across however many markets it
// touched, until the response is built.
type effects struct {
	ordersChanged []orderbook.OrderChanged
	rejected      []orderbook.OrderChangeRejected
	trades        []orderbook.Trade
	balances      orderbook.BalanceDeltas
	limits        map[limitKey]struct{}
}

func newEffects() *effects {
	return &effects{
		balances: make(orderbook.BalanceDeltas),
		limits:   make(map[limitKey]struct{}),
	}
}

func (fx *effects) touch(account orderbook.AccountID, market orderbook.MarketID) {
	fx.limits[limitKey{account: account, market: market}] = struct{}{}
}

// touchAsset marks every market trading asset for a limits update.
func (e *Engine) touchAsset(fx *effects, account orderbook.AccountID, asset orderbook.Asset) {
	for _, id := range e.state.MarketIDsByAsset(asset) {
		fx.touch(account, id)
	}
}

// applyMarketResult folds one market's batch result into the ledger:
// trade deltas are applied floored at zero and the reservations of every
// account involved are recomputed from the book.
func (e *Engine) applyMarketResult(fx *effects, m *orderbook.Market, account orderbook.AccountID, res orderbook.BatchResult, skipGuid *orderbook.OrderGuid) {
	for _, c := range res.OrdersChanged {
		if skipGuid != nil && c.Guid == *skipGuid {
			continue
		}
		fx.ordersChanged = append(fx.ordersChanged, c)
	}
	fx.rejected = append(fx.rejected, res.OrdersChangeRejected...)
	fx.trades = append(fx.trades, res.Trades...)

	accounts := []orderbook.AccountID{account}
	for _, k := range res.Deltas.Keys() {
		delta := res.Deltas[k]
		e.state.ApplyTradeDelta(k.Account, k.Asset, delta)
		fx.balances.Add(k.Account, k.Asset, delta)
		e.touchAsset(fx, k.Account, k.Asset)
		if !slices.Contains(accounts, k.Account) {
			accounts = append(accounts, k.Account)
		}
	}
	for _, a := range accounts {
		if e.state.RecomputeConsumption(a, m) {
			fx.touch(a, m.ID)
		}
	}
}

// autoReduce brings every touched account and asset whose reservations
// exceed its balance back within it. Markets are visited in ascending id
// order; each keeps what it reserves until the balance is used up, and
// the rest are cut.
func (e *Engine) autoReduce(fx *effects) {
	for _, k := range fx.balances.Keys() {
		balance := e.state.Balance(k.Account, k.Asset)
		if !e.state.TotalConsumed(k.Account, k.Asset).GreaterThan(balance) {
			continue
		}

		remaining := amount.Max(balance, amount.Zero)
		var changes []orderbook.OrderChanged
		for _, id := range e.state.ConsumedMarkets(k.Account, k.Asset) {
			m, _ := e.state.Market(id)
			changes = append(changes, m.AutoReduce(k.Account, k.Asset, remaining)...)
			e.state.RecomputeConsumption(k.Account, m)
			remaining = remaining.Sub(e.state.Consumed(k.Account, k.Asset, id))
			fx.touch(k.Account, id)
		}
		slices.SortFunc(changes, func(a, b orderbook.OrderChanged) int { return cmp.Compare(a.Guid, b.Guid) })

		e.log.Info("orders auto-reduced", "account", k.Account, "asset", k.Asset, "balance", balance, "orders", len(changes))
		fx.ordersChanged = append(fx.ordersChanged, changes...)
	}
}

func (e *Engine) limitsUpdates(fx *effects) []ledger.LimitsUpdate {
	if len(fx.limits) == 0 {
		return nil
	}
	updates := make([]ledger.LimitsUpdate, 0, len(fx.limits))
	for k := range fx.limits {
		updates = append(updates, e.state.Limits(k.account, k.market))
	}
	ledger.SortLimits(updates)
	return updates
}

func (e *Engine) respond(fx *effects) *protocol.Response {
	var changes []orderbook.BalanceChange
	if len(fx.balances) > 0 {
		changes = fx.balances.Changes()
	}
	return &protocol.Response{
		OrdersChanged:        fx.ordersChanged,
		OrdersChangeRejected: fx.rejected,
		TradesCreated:        fx.trades,
		BalancesChanged:      changes,
		LimitsUpdated:        e.limitsUpdates(fx),
	}
}

func sumNotional(m *orderbook.Market, trades []orderbook.Trade) decimal.Decimal {
	total := amount.Zero
	for _, t := range trades {
		total = total.Add(amount.Notional(t.Amount, t.Price, m.BaseDecimals, m.QuoteDecimals))
	}
	return total
}

func sumAmount(trades []orderbook.Trade) decimal.Decimal {
	total := amount.Zero
	for _, t := range trades {
		total = total.Add(t.Amount)
	}
	return total
}
