package entry

import "time"

type RecordType uint8

const (
	// RecordRequest carries one encoded protocol request.
	RecordRequest RecordType = iota + 1
)

// Record is one sequenced input. Time is the sequencing wall clock in
// unix nanoseconds and is replayed as recorded.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, at time.Time, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: at.UnixNano(),
		Data: data,
	}
}

// CreatedAt is Time in unix milliseconds.
func (r *Record) CreatedAt() int64 {
	return time.Unix(0, r.Time).UnixMilli()
}
