package entry

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, w *WAL, from, n uint64) {
	t.Helper()
	for seq := from; seq < from+n; seq++ {
		rec := NewRecord(RecordRequest, seq, time.UnixMilli(int64(seq)), []byte(fmt.Sprintf("request-%d", seq)))
		require.NoError(t, w.Append(rec))
	}
}

func collect(t *testing.T, dir string, from int) ([]*Record, uint64) {
	t.Helper()
	var out []*Record
	last, err := ReplayFrom(dir, from, func(r *Record) error {
		out = append(out, r)
		return nil
	})
	require.NoError(t, err)
	return out, last
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)

	appendN(t, w, 1, 50)
	require.NoError(t, w.Close())

	recs, last := collect(t, dir, 0)
	require.Len(t, recs, 50)
	assert.Equal(t, uint64(50), last)
	assert.Equal(t, RecordRequest, recs[9].Type)
	assert.Equal(t, uint64(10), recs[9].Seq)
	assert.Equal(t, int64(10), recs[9].CreatedAt())
	assert.Equal(t, "request-10", string(recs[9].Data))
}

func TestRotationBySize(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, w.Segment())

	appendN(t, w, 1, 10)
	assert.Greater(t, w.Segment(), 0)
	require.NoError(t, w.Close())

	indexes, err := listSegments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(indexes), 1)

	recs, last := collect(t, dir, 0)
	assert.Len(t, recs, 10)
	assert.Equal(t, uint64(10), last)
}

func TestReopenStartsNewSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	w, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Segment())
	appendN(t, w, 4, 3)
	require.NoError(t, w.Close())

	recs, _ := collect(t, dir, 1)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(4), recs[0].Seq)
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1})
	require.NoError(t, err)
	appendN(t, w, 1, 4)
	assert.Equal(t, 4, w.Segment())

	require.NoError(t, w.TruncateBefore(3))
	indexes, err := listSegments(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, indexes)
	require.NoError(t, w.Close())

	recs, _ := collect(t, dir, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(4), recs[0].Seq)
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, st.Size()-3))

	recs, last := collect(t, dir, 0)
	assert.Len(t, recs, 2)
	assert.Equal(t, uint64(2), last)
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = ReplayFrom(dir, 0, func(*Record) error { return nil })
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReplayRejectsSequenceRegression(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	appendN(t, w, 5, 2)
	appendN(t, w, 3, 1)
	require.NoError(t, w.Close())

	_, err = ReplayFrom(dir, 0, func(*Record) error { return nil })
	assert.ErrorIs(t, err, ErrNonMonotonic)
}
