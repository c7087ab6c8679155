package og

import "time"

// SlidingWindow admits at most limit events within any window-long interval.
// It keeps the timestamps of admitted events. Its clock never goes back: an
// event stamped before the latest one seen is treated as happening at the
// latest one. Not safe for concurrent use.
type SlidingWindow struct {
	limit  int
	window time.Duration
	stamps []time.Time
	latest time.Time
}

// NewSlidingWindow creates a limiter. A non-positive limit disables it.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, max(limit, 0)),
	}
}

// Allow records an event at now if capacity remains. Otherwise it returns
// how long to wait until the oldest event leaves the window.
func (w *SlidingWindow) Allow(now time.Time) (bool, time.Duration) {
	if w.limit <= 0 {
		return true, 0
	}

	now = w.clock(now)
	w.evict(now)
	if len(w.stamps) >= w.limit {
		return false, w.stamps[0].Add(w.window).Sub(now)
	}
	w.stamps = append(w.stamps, now)
	return true, 0
}

// Count returns the number of events still inside the window at now.
func (w *SlidingWindow) Count(now time.Time) int {
	w.evict(w.clock(now))
	return len(w.stamps)
}

func (w *SlidingWindow) clock(now time.Time) time.Time {
	if now.Before(w.latest) {
		return w.latest
	}
	w.latest = now
	return now
}

func (w *SlidingWindow) evict(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
