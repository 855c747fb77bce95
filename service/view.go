package service

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// MarketView is a market's top of book as of one sequence number.
type MarketView struct {
	MarketID      orderbook.MarketID      `json:"marketId"`
	TickSize      decimal.Decimal         `json:"tickSize"`
	BidOfferState orderbook.BidOfferState `json:"bidOfferState"`
}

// View is an immutable copy of every market's top of book. The writer
// loop publishes a new View after each request that can move a book;
// readers load it without coordinating with the writer.
type View struct {
	Sequence uint64
	Markets  map[orderbook.MarketID]MarketView
}

func (v *View) Market(id orderbook.MarketID) (MarketView, bool) {
	if v == nil {
		return MarketView{}, false
	}
	m, ok := v.Markets[id]
	return m, ok
}

type viewPublisher struct {
	current atomic.Pointer[View]
}

func (p *viewPublisher) load() *View {
	if v := p.current.Load(); v != nil {
		return v
	}
	return &View{}
}

// publish rebuilds the view when t can have changed a book.
func (p *viewPublisher) publish(e *Engine, seq uint64, t protocol.RequestType) {
	switch t {
	case protocol.TypeAddMarket, protocol.TypeApplyOrderBatch, protocol.TypeApplyBalanceBatch:
	default:
		if p.current.Load() != nil {
			return
		}
	}
	ids := e.state.MarketIDs()
	v := &View{Sequence: seq, Markets: make(map[orderbook.MarketID]MarketView, len(ids))}
	for _, id := range ids {
		m, _ := e.state.Market(id)
		v.Markets[id] = MarketView{MarketID: id, TickSize: m.TickSize, BidOfferState: m.BidOfferState()}
	}
	p.current.Store(v)
}
