package orderbook

import (
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

type LevelOrderState struct {
	Guid             OrderGuid
	Account          AccountID
	Quantity         decimal.Decimal
	OriginalQuantity decimal.Decimal
	FeeRate          amount.FeeRate
}

// LevelState is one non-empty level: its cursors plus the occupied window
// in FIFO order.
type LevelState struct {
	Ix     int
	Side   Side
	Price  decimal.Decimal
	Total  decimal.Decimal
	Head   int
	Tail   int
	Orders []LevelOrderState
}

type MarketState struct {
	ID                MarketID
	TickSize          decimal.Decimal
	MaxOrdersPerLevel int
	BaseDecimals      int32
	QuoteDecimals     int32
	MinFee            decimal.Decimal

	MinBidIx    int
	BestBidIx   int
	BestOfferIx int
	MaxOfferIx  int

	Levels []LevelState
}

// Checkpoint captures the market. Empty levels are never written.
func (m *Market) Checkpoint() MarketState {
	s := MarketState{
		ID:                m.ID,
		TickSize:          m.TickSize,
		MaxOrdersPerLevel: m.MaxOrdersPerLevel,
		BaseDecimals:      m.BaseDecimals,
		QuoteDecimals:     m.QuoteDecimals,
		MinFee:            m.MinFee,
		MinBidIx:          m.minBidIx,
		BestBidIx:         m.bestBidIx,
		BestOfferIx:       m.bestOfferIx,
		MaxOfferIx:        m.maxOfferIx,
	}
	for l := range m.levels.Ascending() {
		if l.Empty() {
			continue
		}
		ls := LevelState{
			Ix:     l.Ix,
			Side:   l.Side,
			Price:  l.Price,
			Total:  l.total,
			Head:   l.head,
			Tail:   l.tail,
			Orders: make([]LevelOrderState, 0, l.Len()),
		}
		for o := range l.Orders() {
			ls.Orders = append(ls.Orders, LevelOrderState{
				Guid:             o.Guid,
				Account:          o.Account,
				Quantity:         o.Quantity,
				OriginalQuantity: o.OriginalQuantity,
				FeeRate:          o.FeeRate,
			})
		}
		s.Levels = append(s.Levels, ls)
	}
	return s
}

// RestoreMarket rebuilds a market from a checkpoint, re-creating each
// ring buffer at its recorded rotation.
func RestoreMarket(s MarketState, opts ...MarketOption) (*Market, error) {
	if s.MaxOrdersPerLevel < 2 {
		return nil, errors.Newf("market %s: invalid level capacity %d", s.ID, s.MaxOrdersPerLevel)
	}
	m := NewMarket(s.ID, s.TickSize, s.MaxOrdersPerLevel, s.BaseDecimals, s.QuoteDecimals, s.MinFee, opts...)
	m.minBidIx = s.MinBidIx
	m.bestBidIx = s.BestBidIx
	m.bestOfferIx = s.BestOfferIx
	m.maxOfferIx = s.MaxOfferIx

	for _, ls := range s.Levels {
		if len(ls.Orders) == 0 {
			continue
		}
		l := m.pool.Get()
		if err := l.restore(ls); err != nil {
			return nil, errors.Wrapf(err, "market %s", s.ID)
		}
		if m.levels.Insert(l) != l {
			return nil, errors.Newf("market %s: duplicate level %d", s.ID, ls.Ix)
		}
		for o := range l.Orders() {
			if _, dup := m.ordersByGuid[o.Guid]; dup {
				return nil, errors.Newf("market %s: order %d on more than one level", s.ID, o.Guid)
			}
			m.ordersByGuid[o.Guid] = o
			if l.Side == Buy {
				m.buyOrdersByAccount[o.Account] = append(m.buyOrdersByAccount[o.Account], o)
			} else {
				m.sellOrdersByAccount[o.Account] = append(m.sellOrdersByAccount[o.Account], o)
			}
		}
	}
	return m, nil
}

func (l *Level) restore(s LevelState) error {
	c := len(l.arena)
	n := len(s.Orders)
	switch {
	case n >= c:
		return errors.Newf("level %d holds %d orders, capacity %d", s.Ix, n, c)
	case s.Head < 0 || s.Head >= c || (s.Head+n)%c != s.Tail:
		return errors.Newf("level %d: cursors head=%d tail=%d do not match %d orders", s.Ix, s.Head, s.Tail, n)
	}

	l.init(s.Ix, s.Side, s.Price)
	l.head = s.Head
	l.tail = s.Head
	l.total = amount.Zero
	for _, st := range s.Orders {
		o := l.arena[l.tail]
		o.Guid = st.Guid
		o.Account = st.Account
		o.Quantity = st.Quantity
		o.OriginalQuantity = st.OriginalQuantity
		o.FeeRate = st.FeeRate
		l.total = l.total.Add(st.Quantity)
		l.tail = l.next(l.tail)
	}
	if !l.total.Equal(s.Total) {
		return errors.Newf("level %d: total %s does not match orders %s", s.Ix, s.Total, l.total)
	}
	return nil
}

// Equal reports whether two markets hold the same parameters, edge
// indexes, levels and orders. Physical ring rotation is ignored.
func (m *Market) Equal(x *Market) bool {
	if m.ID != x.ID || !m.TickSize.Equal(x.TickSize) || m.MaxOrdersPerLevel != x.MaxOrdersPerLevel ||
		m.BaseDecimals != x.BaseDecimals || m.QuoteDecimals != x.QuoteDecimals || !m.MinFee.Equal(x.MinFee) {
		return false
	}
	if m.BidOfferState() != x.BidOfferState() || m.levels.Size() != x.levels.Size() {
		return false
	}
	for l := range m.levels.Ascending() {
		other := x.levels.Get(l.Ix)
		if other == nil || !l.Equal(other) {
			return false
		}
	}
	return sameGuids(m.ordersByGuid, x.ordersByGuid) &&
		sameAccountOrders(m.buyOrdersByAccount, x.buyOrdersByAccount) &&
		sameAccountOrders(m.sellOrdersByAccount, x.sellOrdersByAccount)
}

func sameGuids(a, b map[OrderGuid]*LevelOrder) bool {
	return slices.Equal(slices.Sorted(maps.Keys(a)), slices.Sorted(maps.Keys(b)))
}

func sameAccountOrders(a, b map[AccountID][]*LevelOrder) bool {
	if len(a) != len(b) {
		return false
	}
	for account, orders := range a {
		if !slices.Equal(sortedGuids(orders), sortedGuids(b[account])) {
			return false
		}
	}
	return true
}

func sortedGuids(orders []*LevelOrder) []OrderGuid {
	guids := make([]OrderGuid, 0, len(orders))
	for _, o := range orders {
		guids = append(guids, o.Guid)
	}
	slices.Sort(guids)
	return guids
}
