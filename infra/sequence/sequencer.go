package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers starting at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New starts after last; pass 0 on an empty system.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current is the last number handed out.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset moves the sequencer to last, used once recovery has replayed the
// input log.
func (s *Sequencer) Reset(last uint64) {
	s.last.Store(last)
}
