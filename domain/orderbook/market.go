package orderbook

import (
	"iter"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

// LevelPool recycles level arenas. Levels handed back through Put have
// already been reset; Get must return a level sized for the market.
type LevelPool interface {
	Get() *Level
	Put(*Level)
}

type MarketOption func(*Market)

// WithLevelPool replaces the default free list. newPool receives the
// market's per-level capacity.
func WithLevelPool(newPool func(maxOrdersPerLevel int) LevelPool) MarketOption {
	return func(m *Market) {
		m.pool = newPool(m.MaxOrdersPerLevel)
	}
}

func WithLogger(log *slog.Logger) MarketOption {
	return func(m *Market) {
		m.log = log
	}
}

type levelFreeList struct {
	capacity int
	free     []*Level
}

func (p *levelFreeList) Get() *Level {
	if n := len(p.free); n > 0 {
		l := p.free[n-1]
		p.free = p.free[:n-1]
		return l
	}
	return NewLevel(p.capacity)
}

func (p *levelFreeList) Put(l *Level) {
	p.free = append(p.free, l)
}

// Market is the order book for one trading pair. Bids and offers share a
// single level index; the book is kept uncrossed so every bid index is
// below every offer index. The four edge indexes are -1 when their side
// is empty.
type Market struct {
	ID                MarketID
	TickSize          decimal.Decimal
	MaxOrdersPerLevel int
	BaseDecimals      int32
	QuoteDecimals     int32
	MinFee            decimal.Decimal

	levels *RBTree
	pool   LevelPool
	log    *slog.Logger

	minBidIx    int
	bestBidIx   int
	bestOfferIx int
	maxOfferIx  int

	buyOrdersByAccount  map[AccountID][]*LevelOrder
	sellOrdersByAccount map[AccountID][]*LevelOrder
	ordersByGuid        map[OrderGuid]*LevelOrder
}

func NewMarket(id MarketID, tickSize decimal.Decimal, maxOrdersPerLevel int, baseDecimals, quoteDecimals int32, minFee decimal.Decimal, opts ...MarketOption) *Market {
	m := &Market{
		ID:                  id,
		TickSize:            tickSize,
		MaxOrdersPerLevel:   maxOrdersPerLevel,
		BaseDecimals:        baseDecimals,
		QuoteDecimals:       quoteDecimals,
		MinFee:              minFee,
		levels:              NewRBTree(),
		log:                 slog.New(slog.DiscardHandler),
		minBidIx:            -1,
		bestBidIx:           -1,
		bestOfferIx:         -1,
		maxOfferIx:          -1,
		buyOrdersByAccount:  make(map[AccountID][]*LevelOrder),
		sellOrdersByAccount: make(map[AccountID][]*LevelOrder),
		ordersByGuid:        make(map[OrderGuid]*LevelOrder),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pool == nil {
		m.pool = &levelFreeList{capacity: maxOrdersPerLevel}
	}
	return m
}

// Price resolves a level index to its exact decimal price.
func (m *Market) Price(ix int) decimal.Decimal {
	return m.TickSize.Mul(decimal.NewFromInt(int64(ix)))
}

func (m *Market) BidOfferState() BidOfferState {
	return BidOfferState{
		MinBidIx:    m.minBidIx,
		BestBidIx:   m.bestBidIx,
		BestOfferIx: m.bestOfferIx,
		MaxOfferIx:  m.maxOfferIx,
	}
}

func (m *Market) Level(ix int) *Level {
	return m.levels.Get(ix)
}

func (m *Market) LevelCount() int {
	return m.levels.Size()
}

// Levels yields the non-empty levels in ascending index order.
func (m *Market) Levels() iter.Seq[*Level] {
	return m.levels.Ascending()
}

func (m *Market) Order(guid OrderGuid) (*LevelOrder, bool) {
	o, ok := m.ordersByGuid[guid]
	return o, ok
}

func (m *Market) OrderCount() int {
	return len(m.ordersByGuid)
}

// Accounts returns every account with a resting order, ascending.
func (m *Market) Accounts() []AccountID {
	accounts := make([]AccountID, 0, len(m.buyOrdersByAccount)+len(m.sellOrdersByAccount))
	for a := range m.buyOrdersByAccount {
		accounts = append(accounts, a)
	}
	for a := range m.sellOrdersByAccount {
		if _, ok := m.buyOrdersByAccount[a]; !ok {
			accounts = append(accounts, a)
		}
	}
	slices.Sort(accounts)
	return accounts
}

// BaseRequired is the base quantity reserved by the account's resting sells.
func (m *Market) BaseRequired(account AccountID) decimal.Decimal {
	total := amount.Zero
	for _, o := range m.sellOrdersByAccount[account] {
		total = total.Add(o.Quantity)
	}
	return total
}

// QuoteRequired is notional plus maker fee, at each order's own rate,
// reserved by the account's resting buys.
func (m *Market) QuoteRequired(account AccountID) decimal.Decimal {
	total := amount.Zero
	for _, o := range m.buyOrdersByAccount[account] {
		total = total.Add(amount.NotionalPlusFee(o.Quantity, o.level.Price, m.BaseDecimals, m.QuoteDecimals, o.FeeRate))
	}
	return total
}

// Required returns the reservation the account holds in asset.
func (m *Market) Required(account AccountID, asset Asset) decimal.Decimal {
	switch asset {
	case m.ID.Base():
		return m.BaseRequired(account)
	case m.ID.Quote():
		return m.QuoteRequired(account)
	default:
		return amount.Zero
	}
}

// ReservedFor returns what a single resting order reserves in base and quote.
func (m *Market) ReservedFor(o *LevelOrder) (base, quote decimal.Decimal) {
	if o.level.Side == Buy {
		return amount.Zero, amount.NotionalPlusFee(o.Quantity, o.level.Price, m.BaseDecimals, m.QuoteDecimals, o.FeeRate)
	}
	return o.Quantity, amount.Zero
}

// AddOrderResult is the outcome of placing a single order. Executions are
// maker fills in match order.
type AddOrderResult struct {
	Disposition Disposition
	Executions  []Execution
}

func (r AddOrderResult) Filled() decimal.Decimal {
	total := amount.Zero
	for _, e := range r.Executions {
		total = total.Add(e.Amount)
	}
	return total
}

// AddOrder places a limit or market order for account. Limit orders
// first take whatever crosses up to their own level and rest the
// remainder at the maker rate. Market orders never rest.
func (m *Market) AddOrder(account AccountID, order Order, rates amount.FeeRates) AddOrderResult {
	if m.IsBelowMinFee(order, rates) {
		m.log.Debug("order rejected below min fee", "market", m.ID, "guid", order.OrderGuid())
		return AddOrderResult{Disposition: Rejected}
	}

	switch o := order.(type) {
	case *LimitOrder:
		if !o.Amount.IsPositive() || o.LevelIx < 0 {
			return AddOrderResult{Disposition: Rejected}
		}
		if _, exists := m.ordersByGuid[o.Guid]; exists {
			m.log.Debug("duplicate order guid rejected", "market", m.ID, "guid", o.Guid)
			return AddOrderResult{Disposition: Rejected}
		}
		return m.addLimitOrder(account, o, rates)
	case *MarketOrder:
		if !o.Amount.IsPositive() {
			return AddOrderResult{Disposition: Rejected}
		}
		res := m.cross(o.Side, o.Amount, 0, false)
		if res.Disposition == Accepted {
			m.log.Debug("market order rejected with no match", "market", m.ID, "guid", o.Guid)
			res.Disposition = Rejected
		}
		return res
	default:
		m.log.Error("unsupported order variant rejected", "market", m.ID, "guid", order.OrderGuid())
		return AddOrderResult{Disposition: Rejected}
	}
}

func (m *Market) addLimitOrder(account AccountID, o *LimitOrder, rates amount.FeeRates) AddOrderResult {
	crosses := false
	if o.Side == Buy {
		crosses = m.bestOfferIx != -1 && o.LevelIx >= m.bestOfferIx
	} else {
		crosses = m.bestBidIx != -1 && o.LevelIx <= m.bestBidIx
	}

	if !crosses {
		return AddOrderResult{Disposition: m.rest(account, o.Side, o.LevelIx, o.Guid, o.Amount, rates.Maker)}
	}

	res := m.cross(o.Side, o.Amount, o.LevelIx, true)
	remaining := o.Amount.Sub(res.Filled())
	if remaining.IsPositive() {
		if d := m.rest(account, o.Side, o.LevelIx, o.Guid, remaining, rates.Maker); d == Rejected && res.Disposition == Accepted {
			m.log.Debug("remaining limit amount rejected", "market", m.ID, "guid", o.Guid)
			res.Disposition = Rejected
		}
	}
	return res
}

// IsBelowMinFee prices a market order at the best opposite level with the
// taker rate and a limit order at its own level with the maker rate. A
// zero rate or an empty opposite side skips the check.
func (m *Market) IsBelowMinFee(order Order, rates amount.FeeRates) bool {
	var (
		ix   int
		rate amount.FeeRate
		qty  decimal.Decimal
	)
	switch o := order.(type) {
	case *MarketOrder:
		rate, qty = rates.Taker, o.Amount
		if o.Side == Buy {
			ix = m.bestOfferIx
		} else {
			ix = m.bestBidIx
		}
	case *LimitOrder:
		rate, qty, ix = rates.Maker, o.Amount, o.LevelIx
	default:
		return false
	}
	if rate == 0 || ix == -1 {
		return false
	}
	fee := amount.Fee(amount.Notional(qty, m.Price(ix), m.BaseDecimals, m.QuoteDecimals), rate)
	return fee.LessThan(m.MinFee)
}

// cross matches a taker against the opposite side from the best level
// outward. With hasStop it never goes past stopAt.
func (m *Market) cross(side Side, requested decimal.Decimal, stopAt int, hasStop bool) AddOrderResult {
	remaining := requested
	var executions []Execution

	for remaining.IsPositive() {
		var l *Level
		if side == Buy {
			if m.bestOfferIx == -1 {
				break
			}
			l = m.levels.Get(m.bestOfferIx)
			if hasStop && l.Ix > stopAt {
				break
			}
		} else {
			if m.bestBidIx == -1 {
				break
			}
			l = m.levels.Get(m.bestBidIx)
			if hasStop && l.Ix < stopAt {
				break
			}
		}

		var fills []Execution
		remaining, fills = l.Fill(remaining)
		for _, e := range fills {
			if e.MakerExhausted {
				m.forget(l.Side, e.MakerAccount, e.MakerGuid)
			}
		}
		executions = append(executions, fills...)

		if l.Empty() {
			m.removeLevel(l)
		}
	}

	switch {
	case len(executions) == 0:
		return AddOrderResult{Disposition: Accepted}
	case remaining.IsPositive():
		return AddOrderResult{Disposition: PartiallyFilled, Executions: executions}
	default:
		return AddOrderResult{Disposition: Filled, Executions: executions}
	}
}

// rest adds a resting order at ix. A full level rejects.
func (m *Market) rest(account AccountID, side Side, ix int, guid OrderGuid, qty decimal.Decimal, rate amount.FeeRate) Disposition {
	l := m.getOrCreateLevel(ix, side)
	d, lo := l.Add(account, guid, qty, rate)
	if d != Accepted {
		m.log.Debug("order rejected, level exhausted", "market", m.ID, "guid", guid, "level", ix)
		return d
	}

	m.ordersByGuid[guid] = lo
	if side == Buy {
		m.buyOrdersByAccount[account] = append(m.buyOrdersByAccount[account], lo)
		if m.bestBidIx == -1 || ix > m.bestBidIx {
			m.bestBidIx = ix
		}
		if m.minBidIx == -1 || ix < m.minBidIx {
			m.minBidIx = ix
		}
	} else {
		m.sellOrdersByAccount[account] = append(m.sellOrdersByAccount[account], lo)
		if m.bestOfferIx == -1 || ix < m.bestOfferIx {
			m.bestOfferIx = ix
		}
		if m.maxOfferIx == -1 || ix > m.maxOfferIx {
			m.maxOfferIx = ix
		}
	}
	return Accepted
}

func (m *Market) getOrCreateLevel(ix int, side Side) *Level {
	if l := m.levels.Get(ix); l != nil {
		return l
	}
	return m.levels.Insert(m.pool.Get().init(ix, side, m.Price(ix)))
}

// removeLevel prunes an empty level and moves the edge indexes past it.
func (m *Market) removeLevel(l *Level) {
	ix := l.Ix
	if l.Side == Buy {
		switch {
		case ix == m.bestBidIx && ix == m.minBidIx:
			m.bestBidIx, m.minBidIx = -1, -1
		case ix == m.bestBidIx:
			m.bestBidIx = levelIx(m.levels.Predecessor(ix))
		case ix == m.minBidIx:
			m.minBidIx = levelIx(m.levels.Successor(ix))
		}
	} else {
		switch {
		case ix == m.bestOfferIx && ix == m.maxOfferIx:
			m.bestOfferIx, m.maxOfferIx = -1, -1
		case ix == m.bestOfferIx:
			m.bestOfferIx = levelIx(m.levels.Successor(ix))
		case ix == m.maxOfferIx:
			m.maxOfferIx = levelIx(m.levels.Predecessor(ix))
		}
	}
	m.levels.Delete(ix)
	l.reset()
	m.pool.Put(l)
}

func levelIx(l *Level) int {
	if l == nil {
		return -1
	}
	return l.Ix
}

// forget drops an order from the lookup maps. The level slot itself is
// handled by the caller.
func (m *Market) forget(side Side, account AccountID, guid OrderGuid) {
	o, ok := m.ordersByGuid[guid]
	if !ok {
		return
	}
	delete(m.ordersByGuid, guid)
	byAccount := m.sellOrdersByAccount
	if side == Buy {
		byAccount = m.buyOrdersByAccount
	}
	orders := byAccount[account]
	if i := slices.Index(orders, o); i >= 0 {
		orders = slices.Delete(orders, i, i+1)
	}
	if len(orders) == 0 {
		delete(byAccount, account)
	} else {
		byAccount[account] = orders
	}
}

// removeOrder takes a resting order off the book entirely.
func (m *Market) removeOrder(o *LevelOrder) {
	l := o.level
	m.forget(l.Side, o.Account, o.Guid)
	l.Remove(o)
	if l.Empty() {
		m.removeLevel(l)
	}
}

// CancelOrder removes the account's resting order.
func (m *Market) CancelOrder(account AccountID, guid OrderGuid) RejectReason {
	o, ok := m.ordersByGuid[guid]
	if !ok {
		return DoesNotExist
	}
	if o.Account != account {
		return NotForUser
	}
	m.removeOrder(o)
	return RejectNone
}
