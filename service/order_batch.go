package service

import (
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

func (e *Engine) applyOrderBatch(batch *protocol.OrderBatch, now int64) *protocol.Response {
	if batch == nil {
		return reject(protocol.ErrorUnknownRequest)
	}
	m, ok := e.state.Market(batch.MarketID)
	if !ok {
		return reject(protocol.ErrorUnknownMarket)
	}

	var resp *protocol.Response
	if b2b, isB2B := backToBackOrder(batch); isB2B {
		if b2b == nil {
			resp = reject(protocol.ErrorInvalidBackToBackOrder)
		} else {
			resp = e.applyBackToBack(m, batch.Account, b2b, now)
		}
	} else {
		resp = e.applyOrders(m, batch, now)
	}
	state := m.BidOfferState()
	resp.BidOfferState = &state
	return resp
}

// backToBackOrder finds a back-to-back order in the batch. It returns nil
// with true when one is present but not alone in the batch.
func backToBackOrder(batch *protocol.OrderBatch) (*orderbook.BackToBackOrder, bool) {
	for _, order := range batch.OrdersToAdd {
		if b2b, ok := order.(*orderbook.BackToBackOrder); ok {
			if len(batch.OrdersToAdd) != 1 || len(batch.OrdersToCancel) != 0 {
				return nil, true
			}
			return b2b, true
		}
	}
	return nil, false
}

func (e *Engine) applyOrders(m *orderbook.Market, batch *protocol.OrderBatch, now int64) *protocol.Response {
	rates := e.state.FeeRates
	orders := e.sizePercentageOrders(m, batch.Account, batch.OrdersToAdd)
	if code := e.checkLimits(m, batch.Account, orders, batch.OrdersToCancel, rates); code != protocol.ErrorNone {
		return reject(code)
	}

	fx := newEffects()
	res := m.ApplyOrderBatch(batch.Account, orders, batch.OrdersToCancel, rates, now)
	e.applyMarketResult(fx, m, batch.Account, res, nil)
	e.autoReduce(fx)
	return e.respond(fx)
}
