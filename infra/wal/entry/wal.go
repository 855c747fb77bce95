package entry

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const headerSize = 1 + 8 + 8 + 4

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// Sync fsyncs every append.
	Sync bool
}

// WAL is the segmented input log. A segment index doubles as the
// checkpoint cycle: rolling into segment N means every record in
// segments below N has been written.
type WAL struct {
	dir        string
	segSize    int64
	segDur     time.Duration
	sync       bool
	current    *segment
	lastRotate time.Time
}

// Open starts a fresh segment after the newest one already in dir, so a
// torn tail left by a crash is never appended to.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create wal dir")
	}
	indexes, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	next := 0
	if n := len(indexes); n > 0 {
		next = indexes[n-1] + 1
	}

	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, err
	}
	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		sync:       cfg.Sync,
		current:    seg,
		lastRotate: time.Now(),
	}, nil
}

// Segment is the index of the segment being written.
func (w *WAL) Segment() int {
	return w.current.index
}

func (w *WAL) Dir() string {
	return w.dir
}

// Append writes r and rolls to a new segment once the current one is
// over its size or age.
func (w *WAL) Append(r *Record) error {
	if err := w.current.append(encodeRecord(r)); err != nil {
		return errors.Wrapf(err, "append seq %d", r.Seq)
	}
	if w.sync {
		if err := w.current.sync(); err != nil {
			return errors.Wrapf(err, "sync seq %d", r.Seq)
		}
	}

	full := w.segSize > 0 && w.current.offset >= w.segSize
	old := w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur
	if full || old {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return errors.Wrap(err, "sync before rotate")
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes every segment below index.
func (w *WAL) TruncateBefore(index int) error {
	indexes, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, ix := range indexes {
		if ix >= index || ix >= w.current.index {
			break
		}
		if err := os.Remove(segmentPath(w.dir, ix)); err != nil {
			return errors.Wrapf(err, "remove segment %d", ix)
		}
	}
	return nil
}

func (w *WAL) Close() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	return w.current.close()
}

func encodeRecord(r *Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(payloadLen)+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)
	return buf
}
