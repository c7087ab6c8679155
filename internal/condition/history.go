package condition

import (
	"sync"
	"time"

	"polytrader/internal/model"
)

const DefaultHistorySize = 100

// History is a fixed-capacity FIFO of the latest ticks of one instrument.
// It is owned by a single instrument worker and is not safe for concurrent use.
type History struct {
	buf   []model.Tick
	start int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]model.Tick, capacity)}
}

// Push appends a tick, evicting the oldest one when full.
func (h *History) Push(t model.Tick) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = t
		h.size++
		return
	}
	h.buf[h.start] = t
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.size
}

func (h *History) Cap() int {
	return len(h.buf)
}

// At returns the i-th tick, oldest first.
func (h *History) At(i int) model.Tick {
	return h.buf[(h.start+i)%len(h.buf)]
}

func (h *History) Oldest() (model.Tick, bool) {
	if h.Len() == 0 {
		return model.Tick{}, false
	}
	return h.At(0), true
}

func (h *History) Latest() (model.Tick, bool) {
	if h.Len() == 0 {
		return model.Tick{}, false
	}
	return h.At(h.size - 1), true
}

// AtOrBefore returns the newest tick stamped at or before ts.
func (h *History) AtOrBefore(ts time.Time) (model.Tick, bool) {
	for i := h.Len() - 1; i >= 0; i-- {
		if t := h.At(i); !t.Timestamp.After(ts) {
			return t, true
		}
	}
	return model.Tick{}, false
}

// Snapshot copies the ticks, oldest first.
func (h *History) Snapshot() []model.Tick {
	out := make([]model.Tick, h.Len())
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}

// HistorySet keeps one History per instrument.
type HistorySet struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*History
}

func NewHistorySet(capacity int) *HistorySet {
	return &HistorySet{
		capacity: capacity,
		byID:     make(map[string]*History),
	}
}

// Get returns the history of an instrument, creating it on first use.
func (s *HistorySet) Get(instrumentID string) *History {
	s.mu.RLock()
	h, ok := s.byID[instrumentID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.byID[instrumentID]; ok {
		return h
	}
	h = NewHistory(s.capacity)
	s.byID[instrumentID] = h
	return h
}
