package entry

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

var (
	ErrCorrupt      = errors.New("wal: record checksum mismatch")
	ErrNonMonotonic = errors.New("wal: non-monotonic sequence")
)

type ReplayHandler func(*Record) error

// ReplayFrom feeds fn every record in segments at or above fromSegment,
// oldest first. A record cut short at the end of a segment is the crash
// point of that segment and is skipped; the next segment carries on.
func ReplayFrom(dir string, fromSegment int, fn ReplayHandler) (lastSeq uint64, err error) {
	indexes, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	for _, ix := range indexes {
		if ix < fromSegment {
			continue
		}
		lastSeq, err = replaySegment(dir, ix, lastSeq, fn)
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

// Replay reads the whole log.
func Replay(dir string, fn ReplayHandler) (uint64, error) {
	return ReplayFrom(dir, 0, fn)
}

func replaySegment(dir string, index int, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(segmentPath(dir, index))
	if err != nil {
		return lastSeq, errors.Wrapf(err, "open segment %d", index)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return lastSeq, nil
		}
		if err != nil {
			return lastSeq, errors.Wrapf(err, "segment %d", index)
		}
		if lastSeq != 0 && rec.Seq <= lastSeq {
			return lastSeq, errors.Wrapf(ErrNonMonotonic, "segment %d: seq %d after %d", index, rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	l := binary.BigEndian.Uint32(header[17:21])

	body := make([]byte, int(l)+4)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	payload := body[:l]
	crc := binary.BigEndian.Uint32(body[l:])

	if checksum(append(header, payload...)) != crc {
		return nil, ErrCorrupt
	}
	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}
