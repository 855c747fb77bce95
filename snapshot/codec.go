package snapshot

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"sequencer/domain/amount"
	"sequencer/domain/ledger"
	"sequencer/domain/orderbook"
)

// Checkpoint is a ledger snapshot tagged with its cycle.
type Checkpoint struct {
	Cycle int
	State ledger.Snapshot
}

// checkpoint fields
const (
	fCycle          protowire.Number = 1
	fMaker          protowire.Number = 2
	fTaker          protowire.Number = 3
	fMarkets        protowire.Number = 4
	fBalances       protowire.Number = 5
	fConsumed       protowire.Number = 6
	fWithdrawalFees protowire.Number = 7
)

// market fields
const (
	fMarketID      protowire.Number = 1
	fTickSize      protowire.Number = 2
	fMaxOrders     protowire.Number = 3
	fBaseDecimals  protowire.Number = 4
	fQuoteDecimals protowire.Number = 5
	fMinFee        protowire.Number = 6
	fMinBidIx      protowire.Number = 7
	fBestBidIx     protowire.Number = 8
	fBestOfferIx   protowire.Number = 9
	fMaxOfferIx    protowire.Number = 10
	fLevels        protowire.Number = 11
)

// level fields
const (
	fLevelIx     protowire.Number = 1
	fLevelSide   protowire.Number = 2
	fLevelPrice  protowire.Number = 3
	fLevelTotal  protowire.Number = 4
	fLevelHead   protowire.Number = 5
	fLevelTail   protowire.Number = 6
	fLevelOrders protowire.Number = 7
)

func Encode(c Checkpoint) []byte {
	var e encoder
	s := c.State
	e.varint(fCycle, uint64(c.Cycle))
	e.sint(fMaker, int64(s.FeeRates.Maker))
	e.sint(fTaker, int64(s.FeeRates.Taker))
	for _, m := range s.Markets {
		e.message(fMarkets, func(e *encoder) { encodeMarket(e, m) })
	}
	for _, b := range s.Balances {
		e.message(fBalances, func(e *encoder) {
			e.varint(1, uint64(b.Account))
			e.str(2, string(b.Asset))
			e.decimal(3, b.Amount)
		})
	}
	for _, ce := range s.Consumed {
		e.message(fConsumed, func(e *encoder) {
			e.varint(1, uint64(ce.Account))
			e.str(2, string(ce.Asset))
			e.str(3, string(ce.MarketID))
			e.decimal(4, ce.Amount)
		})
	}
	for _, f := range s.WithdrawalFees {
		e.message(fWithdrawalFees, func(e *encoder) {
			e.str(1, string(f.Asset))
			e.decimal(2, f.Fee)
		})
	}
	return e.b
}

func encodeMarket(e *encoder, m orderbook.MarketState) {
	e.str(fMarketID, string(m.ID))
	e.decimal(fTickSize, m.TickSize)
	e.varint(fMaxOrders, uint64(m.MaxOrdersPerLevel))
	e.sint(fBaseDecimals, int64(m.BaseDecimals))
	e.sint(fQuoteDecimals, int64(m.QuoteDecimals))
	e.decimal(fMinFee, m.MinFee)
	e.sint(fMinBidIx, int64(m.MinBidIx))
	e.sint(fBestBidIx, int64(m.BestBidIx))
	e.sint(fBestOfferIx, int64(m.BestOfferIx))
	e.sint(fMaxOfferIx, int64(m.MaxOfferIx))
	for _, l := range m.Levels {
		e.message(fLevels, func(e *encoder) {
			e.sint(fLevelIx, int64(l.Ix))
			e.varint(fLevelSide, uint64(l.Side))
			e.decimal(fLevelPrice, l.Price)
			e.decimal(fLevelTotal, l.Total)
			e.varint(fLevelHead, uint64(l.Head))
			e.varint(fLevelTail, uint64(l.Tail))
			for _, o := range l.Orders {
				e.message(fLevelOrders, func(e *encoder) {
					e.sint(1, int64(o.Guid))
					e.varint(2, uint64(o.Account))
					e.decimal(3, o.Quantity)
					e.decimal(4, o.OriginalQuantity)
					e.sint(5, int64(o.FeeRate))
				})
			}
		})
	}
}

func Decode(b []byte) (Checkpoint, error) {
	var c Checkpoint
	s := &c.State
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case fCycle:
			c.Cycle = int(d.varint(typ))
		case fMaker:
			s.FeeRates.Maker = amount.FeeRate(d.sint(typ))
		case fTaker:
			s.FeeRates.Taker = amount.FeeRate(d.sint(typ))
		case fMarkets:
			m, err := decodeMarket(d.bytes(typ))
			d.fail(err)
			s.Markets = append(s.Markets, m)
		case fBalances:
			var be ledger.BalanceEntry
			d.fail(decodeMessage(d.bytes(typ), func(d *decoder, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					be.Account = ledger.AccountID(d.varint(typ))
				case 2:
					be.Asset = ledger.Asset(d.str(typ))
				case 3:
					be.Amount = d.decimal(typ)
				default:
					d.skip(num, typ)
				}
			}))
			s.Balances = append(s.Balances, be)
		case fConsumed:
			var ce ledger.ConsumedEntry
			d.fail(decodeMessage(d.bytes(typ), func(d *decoder, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					ce.Account = ledger.AccountID(d.varint(typ))
				case 2:
					ce.Asset = ledger.Asset(d.str(typ))
				case 3:
					ce.MarketID = ledger.MarketID(d.str(typ))
				case 4:
					ce.Amount = d.decimal(typ)
				default:
					d.skip(num, typ)
				}
			}))
			s.Consumed = append(s.Consumed, ce)
		case fWithdrawalFees:
			var we ledger.WithdrawalFeeEntry
			d.fail(decodeMessage(d.bytes(typ), func(d *decoder, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					we.Asset = ledger.Asset(d.str(typ))
				case 2:
					we.Fee = d.decimal(typ)
				default:
					d.skip(num, typ)
				}
			}))
			s.WithdrawalFees = append(s.WithdrawalFees, we)
		default:
			d.skip(num, typ)
		}
	}
	if d.err != nil {
		return Checkpoint{}, errors.Wrap(d.err, "decode checkpoint")
	}
	return c, nil
}

func decodeMarket(b []byte) (orderbook.MarketState, error) {
	var m orderbook.MarketState
	err := decodeMessage(b, func(d *decoder, num protowire.Number, typ protowire.Type) {
		switch num {
		case fMarketID:
			m.ID = orderbook.MarketID(d.str(typ))
		case fTickSize:
			m.TickSize = d.decimal(typ)
		case fMaxOrders:
			m.MaxOrdersPerLevel = int(d.varint(typ))
		case fBaseDecimals:
			m.BaseDecimals = int32(d.sint(typ))
		case fQuoteDecimals:
			m.QuoteDecimals = int32(d.sint(typ))
		case fMinFee:
			m.MinFee = d.decimal(typ)
		case fMinBidIx:
			m.MinBidIx = int(d.sint(typ))
		case fBestBidIx:
			m.BestBidIx = int(d.sint(typ))
		case fBestOfferIx:
			m.BestOfferIx = int(d.sint(typ))
		case fMaxOfferIx:
			m.MaxOfferIx = int(d.sint(typ))
		case fLevels:
			l, err := decodeLevel(d.bytes(typ))
			d.fail(err)
			m.Levels = append(m.Levels, l)
		default:
			d.skip(num, typ)
		}
	})
	return m, errors.Wrapf(err, "market %s", m.ID)
}

func decodeLevel(b []byte) (orderbook.LevelState, error) {
	var l orderbook.LevelState
	err := decodeMessage(b, func(d *decoder, num protowire.Number, typ protowire.Type) {
		switch num {
		case fLevelIx:
			l.Ix = int(d.sint(typ))
		case fLevelSide:
			l.Side = orderbook.Side(d.varint(typ))
		case fLevelPrice:
			l.Price = d.decimal(typ)
		case fLevelTotal:
			l.Total = d.decimal(typ)
		case fLevelHead:
			l.Head = int(d.varint(typ))
		case fLevelTail:
			l.Tail = int(d.varint(typ))
		case fLevelOrders:
			var o orderbook.LevelOrderState
			d.fail(decodeMessage(d.bytes(typ), func(d *decoder, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					o.Guid = orderbook.OrderGuid(d.sint(typ))
				case 2:
					o.Account = orderbook.AccountID(d.varint(typ))
				case 3:
					o.Quantity = d.decimal(typ)
				case 4:
					o.OriginalQuantity = d.decimal(typ)
				case 5:
					o.FeeRate = amount.FeeRate(d.sint(typ))
				default:
					d.skip(num, typ)
				}
			}))
			l.Orders = append(l.Orders, o)
		default:
			d.skip(num, typ)
		}
	})
	return l, err
}

type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	e.varint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) str(num protowire.Number, s string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) decimal(num protowire.Number, v decimal.Decimal) {
	e.str(num, v.String())
}

func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, sub.b)
}

// decoder walks one message. The first error sticks and stops the walk.
type decoder struct {
	b   []byte
	err error
}

func decodeMessage(b []byte, field func(d *decoder, num protowire.Number, typ protowire.Type)) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		field(&d, num, typ)
	}
	return d.err
}

func (d *decoder) next() (protowire.Number, protowire.Type, bool) {
	if d.err != nil || len(d.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if !d.advance(n) {
		return 0, 0, false
	}
	return num, typ, true
}

func (d *decoder) advance(n int) bool {
	if n < 0 {
		d.fail(protowire.ParseError(n))
		return false
	}
	d.b = d.b[n:]
	return true
}

func (d *decoder) fail(err error) {
	if err != nil && d.err == nil {
		d.err = err
		d.b = nil
	}
}

func (d *decoder) expect(typ, want protowire.Type) bool {
	if typ != want {
		d.fail(errors.Newf("wire type %d, want %d", typ, want))
		return false
	}
	return d.err == nil
}

func (d *decoder) varint(typ protowire.Type) uint64 {
	if !d.expect(typ, protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	if !d.advance(n) {
		return 0
	}
	return v
}

func (d *decoder) sint(typ protowire.Type) int64 {
	return protowire.DecodeZigZag(d.varint(typ))
}

func (d *decoder) bytes(typ protowire.Type) []byte {
	if !d.expect(typ, protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(d.b)
	if !d.advance(n) {
		return nil
	}
	return v
}

func (d *decoder) str(typ protowire.Type) string {
	return string(d.bytes(typ))
}

func (d *decoder) decimal(typ protowire.Type) decimal.Decimal {
	s := d.str(typ)
	if d.err != nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(errors.Wrapf(err, "amount %q", s))
		return decimal.Zero
	}
	return v
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) {
	d.advance(protowire.ConsumeFieldValue(num, typ, d.b))
}
