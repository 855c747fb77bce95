package service

import (
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// applyBalanceBatch applies deposits, withdrawals and rollbacks in that
// order, then auto-reduces whatever the new balances no longer cover.
// Rollbacks may leave a balance negative.
func (e *Engine) applyBalanceBatch(batch *protocol.BalanceBatch) *protocol.Response {
	if batch == nil {
		return reject(protocol.ErrorUnknownRequest)
	}
	fx := newEffects()

	for _, d := range batch.Deposits {
		e.adjust(fx, d.Account, d.Asset, d.Amount)
	}

	var withdrawals []protocol.WithdrawalCreated
	for _, w := range batch.Withdrawals {
		fee := e.state.WithdrawalFee(w.Asset)
		balance := e.state.Balance(w.Account, w.Asset)
		requested := w.Amount
		if requested.IsZero() {
			requested = balance
		}
		if !requested.GreaterThan(fee) || requested.GreaterThan(balance) {
			e.log.Debug("withdrawal skipped", "account", w.Account, "asset", w.Asset, "amount", requested, "balance", balance, "fee", fee)
			continue
		}
		e.adjust(fx, w.Account, w.Asset, requested.Neg())
		withdrawals = append(withdrawals, protocol.WithdrawalCreated{ExternalGuid: w.ExternalGuid, Fee: fee})
	}

	for _, f := range batch.FailedWithdrawals {
		e.adjust(fx, f.Account, f.Asset, f.Amount)
	}

	for _, f := range batch.FailedSettlements {
		m, ok := e.state.Market(f.MarketID)
		if !ok {
			e.log.Warn("failed settlement for unknown market", "market", f.MarketID)
			continue
		}
		base, quote := m.ID.Assets()
		notional := amount.Notional(f.Trade.Amount, m.Price(f.Trade.LevelIx), m.BaseDecimals, m.QuoteDecimals)
		e.adjust(fx, f.SellAccount, base, f.Trade.Amount)
		e.adjust(fx, f.SellAccount, quote, notional.Sub(f.Trade.SellerFee).Neg())
		e.adjust(fx, f.BuyAccount, base, f.Trade.Amount.Neg())
		e.adjust(fx, f.BuyAccount, quote, notional.Add(f.Trade.BuyerFee))
	}

	for _, k := range fx.balances.Keys() {
		e.touchAsset(fx, k.Account, k.Asset)
	}
	e.autoReduce(fx)

	resp := e.respond(fx)
	resp.WithdrawalsCreated = withdrawals
	return resp
}

// adjust moves a balance without flooring it.
func (e *Engine) adjust(fx *effects, account orderbook.AccountID, asset orderbook.Asset, delta decimal.Decimal) {
	e.state.AddBalance(account, asset, delta)
	fx.balances.Add(account, asset, delta)
}
