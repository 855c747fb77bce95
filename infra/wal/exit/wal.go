package exit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

var ErrNotFound = errors.New("exit: no response for sequence")

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one sequenced response and its delivery state.
type Entry struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const (
	keyPrefix = "response/"
	metaSize  = 1 + 4 + 8
)

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, metaSize+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[metaSize:], e.Payload)
	return buf
}

func decodeEntry(seq uint64, b []byte) (Entry, error) {
	if len(b) < metaSize {
		return Entry{}, errors.Newf("exit: entry %d is %d bytes", seq, len(b))
	}
	payload := make([]byte, len(b)-metaSize)
	copy(payload, b[metaSize:])
	return Entry{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// Log is the output log and outbox: one response per sequence number,
// held until the broadcaster has delivered it.
type Log struct {
	db *pebble.DB
}

func Open(dir string) (*Log, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open output log %s", dir)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// PutNew stores the response for seq, ready for delivery.
func (l *Log) PutNew(seq uint64, payload []byte) error {
	e := Entry{Seq: seq, State: StateNew, Payload: payload}
	return errors.Wrapf(l.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync), "put response %d", seq)
}

func (l *Log) Get(seq uint64) (Entry, error) {
	val, closer, err := l.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "get response %d", seq)
	}
	defer closer.Close()
	return decodeEntry(seq, val)
}

// UpdateState records a delivery attempt outcome.
func (l *Log) UpdateState(seq uint64, state State, retries uint32) error {
	e, err := l.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return errors.Wrapf(l.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync), "update response %d", seq)
}

// ScanPending visits every entry not yet acknowledged, in sequence order.
func (l *Log) ScanPending(fn func(Entry) error) error {
	iter, err := l.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if State(iter.Value()[0]) == StateAcked {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSequence is the highest sequence stored, or 0 when empty.
func (l *Log) LastSequence() (uint64, error) {
	iter, err := l.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// TruncateAckedBefore deletes acknowledged entries below seq and reports
// how many went.
func (l *Log) TruncateAckedBefore(seq uint64) (int, error) {
	iter, err := l.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := l.db.NewBatch()
	defer batch.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		s, err := parseKey(iter.Key())
		if err != nil {
			return 0, err
		}
		if s >= seq {
			break
		}
		if State(iter.Value()[0]) != StateAcked {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, errors.Wrap(batch.Commit(pebble.Sync), "truncate output log")
}

func (l *Log) newIter() (*pebble.Iterator, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	return iter, errors.Wrap(err, "output log iterator")
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	return seq, errors.Wrapf(err, "parse output key %q", b)
}
