package obs

import "sync/atomic"

// Sequencer hands out monotonically increasing sequence numbers.
type Sequencer struct {
	last atomic.Uint64
}

// NewSequencer continues after last, usually the highest sequence recovered
// from the WAL.
func NewSequencer(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	if s == nil {
		return 0
	}
	return s.last.Add(1)
}

// Last returns the most recently issued sequence number.
func (s *Sequencer) Last() uint64 {
	if s == nil {
		return 0
	}
	return s.last.Load()
}
