package orderbook

import (
	"fmt"
	"iter"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
)

// LevelOrder is a resting order held in one of a level's arena slots.
// The pointer stays valid while the order rests, even when removals
// compact the arena around it.
type LevelOrder struct {
	Guid             OrderGuid
	Account          AccountID
	Quantity         decimal.Decimal
	OriginalQuantity decimal.Decimal
	FeeRate          amount.FeeRate

	level *Level
	slot  int
}

func (o *LevelOrder) Level() *Level {
	return o.level
}

func (o *LevelOrder) reset() {
	o.Guid = 0
	o.Account = 0
	o.Quantity = amount.Zero
	o.OriginalQuantity = amount.Zero
	o.FeeRate = 0
}

func (o *LevelOrder) equal(x *LevelOrder) bool {
	return o.Guid == x.Guid &&
		o.Account == x.Account &&
		o.Quantity.Equal(x.Quantity) &&
		o.OriginalQuantity.Equal(x.OriginalQuantity) &&
		o.FeeRate == x.FeeRate
}

// Execution is one maker fill produced while walking a level.
type Execution struct {
	MakerGuid      OrderGuid
	MakerAccount   AccountID
	MakerFeeRate   amount.FeeRate
	MakerRemaining decimal.Decimal
	MakerExhausted bool

	Amount  decimal.Decimal
	LevelIx int
	Price   decimal.Decimal
}

// Level is a fixed capacity FIFO ring of resting orders at one price
// index on one side. head == tail means empty, so at most Capacity()-1
// orders fit.
type Level struct {
	Ix    int
	Side  Side
	Price decimal.Decimal

	arena []*LevelOrder
	head  int
	tail  int
	total decimal.Decimal
}

func NewLevel(capacity int) *Level {
	if capacity < 2 {
		capacity = 2
	}
	l := &Level{
		arena: make([]*LevelOrder, capacity),
		total: amount.Zero,
		Price: amount.Zero,
	}
	for i := range l.arena {
		l.arena[i] = &LevelOrder{level: l, slot: i}
		l.arena[i].reset()
	}
	return l
}

func (l *Level) init(ix int, side Side, price decimal.Decimal) *Level {
	l.Ix = ix
	l.Side = side
	l.Price = price
	return l
}

func (l *Level) reset() {
	for i := l.head; i != l.tail; i = l.next(i) {
		l.arena[i].reset()
	}
	l.Ix = 0
	l.Side = Buy
	l.Price = amount.Zero
	l.head = 0
	l.tail = 0
	l.total = amount.Zero
}

func (l *Level) next(i int) int {
	return (i + 1) % len(l.arena)
}

func (l *Level) Capacity() int {
	return len(l.arena)
}

func (l *Level) Len() int {
	return (l.tail - l.head + len(l.arena)) % len(l.arena)
}

func (l *Level) Empty() bool {
	return l.head == l.tail
}

func (l *Level) Full() bool {
	return l.next(l.tail) == l.head
}

// Cursors exposes the raw head and tail positions.
func (l *Level) Cursors() (head, tail int) {
	return l.head, l.tail
}

func (l *Level) TotalQuantity() decimal.Decimal {
	return l.total
}

// Orders yields the resting orders head to tail, across the wrap.
// The level must not be mutated during iteration.
func (l *Level) Orders() iter.Seq[*LevelOrder] {
	return func(yield func(*LevelOrder) bool) {
		for i := l.head; i != l.tail; i = l.next(i) {
			if !yield(l.arena[i]) {
				return
			}
		}
	}
}

// First returns the order at head, nil when empty.
func (l *Level) First() *LevelOrder {
	if l.Empty() {
		return nil
	}
	return l.arena[l.head]
}

// Add appends an order at tail. A full level rejects without mutating.
func (l *Level) Add(account AccountID, guid OrderGuid, qty decimal.Decimal, rate amount.FeeRate) (Disposition, *LevelOrder) {
	if l.Full() {
		return Rejected, nil
	}
	o := l.arena[l.tail]
	o.Guid = guid
	o.Account = account
	o.Quantity = qty
	o.OriginalQuantity = qty
	o.FeeRate = rate

	l.total = l.total.Add(qty)
	l.tail = l.next(l.tail)
	return Accepted, o
}

// Remove takes o out of the window, shifting whichever side of the ring
// is shorter so the remaining orders keep their FIFO positions.
func (l *Level) Remove(o *LevelOrder) bool {
	if o == nil || o.level != l {
		return false
	}
	c := len(l.arena)
	n := l.Len()
	p := (o.slot - l.head + c) % c
	if p >= n {
		return false
	}

	l.total = l.total.Sub(o.Quantity)
	o.reset()

	if p < n-1-p {
		for i := p; i > 0; i-- {
			dst := (l.head + i) % c
			l.arena[dst] = l.arena[(l.head+i-1)%c]
			l.arena[dst].slot = dst
		}
		l.arena[l.head] = o
		o.slot = l.head
		l.head = l.next(l.head)
		return true
	}

	for i := p; i < n-1; i++ {
		dst := (l.head + i) % c
		l.arena[dst] = l.arena[(l.head+i+1)%c]
		l.arena[dst].slot = dst
	}
	last := (l.head + n - 1) % c
	l.arena[last] = o
	o.slot = last
	l.tail = last
	return true
}

// Reduce lowers a resting order's quantity in place.
func (l *Level) Reduce(o *LevelOrder, qty decimal.Decimal) {
	l.total = l.total.Sub(o.Quantity).Add(qty)
	o.Quantity = qty
}

// Fill consumes up to requested from the head of the level and returns
// what is left unfilled.
func (l *Level) Fill(requested decimal.Decimal) (decimal.Decimal, []Execution) {
	remaining := requested
	var executions []Execution

	for l.head != l.tail && remaining.IsPositive() {
		o := l.arena[l.head]
		if remaining.GreaterThanOrEqual(o.Quantity) {
			executions = append(executions, Execution{
				MakerGuid:      o.Guid,
				MakerAccount:   o.Account,
				MakerFeeRate:   o.FeeRate,
				MakerRemaining: amount.Zero,
				MakerExhausted: true,
				Amount:         o.Quantity,
				LevelIx:        l.Ix,
				Price:          l.Price,
			})
			l.total = l.total.Sub(o.Quantity)
			remaining = remaining.Sub(o.Quantity)
			o.reset()
			l.head = l.next(l.head)
			continue
		}

		o.Quantity = o.Quantity.Sub(remaining)
		l.total = l.total.Sub(remaining)
		executions = append(executions, Execution{
			MakerGuid:      o.Guid,
			MakerAccount:   o.Account,
			MakerFeeRate:   o.FeeRate,
			MakerRemaining: o.Quantity,
			Amount:         remaining,
			LevelIx:        l.Ix,
			Price:          l.Price,
		})
		remaining = amount.Zero
	}
	return remaining, executions
}

// Equal compares the occupied windows only; two levels holding the same
// orders at different rotations are equal.
func (l *Level) Equal(x *Level) bool {
	if l.Ix != x.Ix || l.Side != x.Side || len(l.arena) != len(x.arena) ||
		!l.Price.Equal(x.Price) || !l.total.Equal(x.total) || l.Len() != x.Len() {
		return false
	}
	i, j := l.head, x.head
	for i != l.tail {
		if !l.arena[i].equal(x.arena[j]) {
			return false
		}
		i, j = l.next(i), x.next(j)
	}
	return true
}

func (l *Level) String() string {
	return fmt.Sprintf("level{ix=%d side=%s orders=%d total=%s}", l.Ix, l.Side, l.Len(), l.total)
}
