package service

import (
	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// addMarket creates a market. Re-adding a market with the same tick size
// and decimals succeeds without touching it; different parameters are
// MarketExists.
func (e *Engine) addMarket(req *protocol.AddMarket) *protocol.Response {
	if req == nil || !req.MarketID.Valid() || !req.TickSize.IsPositive() || req.MaxOrdersPerLevel < 2 ||
		req.BaseDecimals < 0 || req.QuoteDecimals < 0 || req.MinFee.IsNegative() {
		return reject(protocol.ErrorUnknownRequest)
	}

	if m, ok := e.state.Market(req.MarketID); ok {
		if !m.TickSize.Equal(req.TickSize) || m.BaseDecimals != req.BaseDecimals || m.QuoteDecimals != req.QuoteDecimals {
			return reject(protocol.ErrorMarketExists)
		}
	} else {
		m := orderbook.NewMarket(req.MarketID, req.TickSize, req.MaxOrdersPerLevel, req.BaseDecimals, req.QuoteDecimals, req.MinFee, e.marketOpts...)
		e.state.AddMarket(m)
		e.log.Info("market created", "market", req.MarketID, "tickSize", req.TickSize, "maxOrdersPerLevel", req.MaxOrdersPerLevel)
	}

	return &protocol.Response{
		MarketsCreated: []protocol.MarketCreated{{
			MarketID:          req.MarketID,
			TickSize:          req.TickSize,
			MaxOrdersPerLevel: req.MaxOrdersPerLevel,
			BaseDecimals:      req.BaseDecimals,
			QuoteDecimals:     req.QuoteDecimals,
			MinFee:            req.MinFee,
		}},
	}
}

// setFeeRates changes the rates for orders accepted from now on. Resting
// orders keep the rate they were accepted with.
func (e *Engine) setFeeRates(rates *amount.FeeRates) *protocol.Response {
	if rates == nil || !rates.Valid() {
		return reject(protocol.ErrorInvalidFeeRate)
	}
	e.state.FeeRates = *rates
	set := *rates
	return &protocol.Response{FeeRatesSet: &set}
}

func (e *Engine) setWithdrawalFees(fees []protocol.WithdrawalFee) *protocol.Response {
	if len(fees) == 0 {
		return reject(protocol.ErrorInvalidWithdrawalFee)
	}
	for _, f := range fees {
		if f.Fee.IsNegative() {
			return reject(protocol.ErrorInvalidWithdrawalFee)
		}
	}
	for _, f := range fees {
		e.state.SetWithdrawalFee(f.Asset, f.Fee)
	}
	return &protocol.Response{WithdrawalFeesSet: fees}
}

// setMarketMinFees ignores markets that do not exist.
func (e *Engine) setMarketMinFees(fees []protocol.MarketMinFee) *protocol.Response {
	if len(fees) == 0 {
		return reject(protocol.ErrorInvalidMarketMinFee)
	}
	for _, f := range fees {
		if f.MinFee.IsNegative() {
			return reject(protocol.ErrorInvalidMarketMinFee)
		}
	}
	for _, f := range fees {
		if m, ok := e.state.Market(f.MarketID); ok {
			m.MinFee = f.MinFee
		}
	}
	return &protocol.Response{MarketMinFeesSet: fees}
}
