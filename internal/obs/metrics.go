package obs

import (
	"sync/atomic"
	"time"

	"polytrader/internal/risk"
)

// Metrics collects lightweight counters and latency stats. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ticks          atomic.Uint64
	feedAnomalies  atomic.Uint64
	riskRejections [risk.ReasonCount]atomic.Uint64

	ordersSubmitted   atomic.Uint64
	ordersFilled      atomic.Uint64
	ordersFailed      atomic.Uint64
	ordersRateLimited atomic.Uint64
	trades            atomic.Uint64

	strategyFaults      atomic.Uint64
	observerDrops       atomic.Uint64
	breakerTrips        atomic.Uint64
	persistenceFailures atomic.Uint64
	alertsFired         atomic.Uint64

	tickLatency  LatencyStats
	feedLatency  LatencyStats
	venueLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metric values.
type Snapshot struct {
	Ticks               uint64            `json:"ticks"`
	FeedAnomalies       uint64            `json:"feed_anomalies"`
	RiskRejections      map[string]uint64 `json:"risk_rejections"`
	OrdersSubmitted     uint64            `json:"orders_submitted"`
	OrdersFilled        uint64            `json:"orders_filled"`
	OrdersFailed        uint64            `json:"orders_failed"`
	OrdersRateLimited   uint64            `json:"orders_rate_limited"`
	Trades              uint64            `json:"trades"`
	StrategyFaults      uint64            `json:"strategy_faults"`
	ObserverDrops       uint64            `json:"observer_drops"`
	BreakerTrips        uint64            `json:"breaker_trips"`
	PersistenceFailures uint64            `json:"persistence_failures"`
	AlertsFired         uint64            `json:"alerts_fired"`
	TickLatency         LatencySnapshot   `json:"tick_latency"`
	FeedLatency         LatencySnapshot   `json:"feed_latency"`
	VenueLatency        LatencySnapshot   `json:"venue_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveTick counts a processed tick and its processing time.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Add(1)
	m.tickLatency.Observe(d)
}

// ObserveFeedDelay tracks the delay between event and receive time.
func (m *Metrics) ObserveFeedDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.feedLatency.Observe(d)
}

// ObserveVenue tracks the round trip of a live placement.
func (m *Metrics) ObserveVenue(d time.Duration) {
	if m == nil {
		return
	}
	m.venueLatency.Observe(d)
}

func (m *Metrics) IncFeedAnomaly() {
	if m == nil {
		return
	}
	m.feedAnomalies.Add(1)
}

func (m *Metrics) IncRiskRejection(reason risk.Reason) {
	if m == nil {
		return
	}
	if idx := int(reason); idx < len(m.riskRejections) {
		m.riskRejections[idx].Add(1)
	}
}

func (m *Metrics) IncOrderSubmitted() {
	if m == nil {
		return
	}
	m.ordersSubmitted.Add(1)
}

func (m *Metrics) IncOrderFilled() {
	if m == nil {
		return
	}
	m.ordersFilled.Add(1)
}

func (m *Metrics) IncOrderFailed() {
	if m == nil {
		return
	}
	m.ordersFailed.Add(1)
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.ordersRateLimited.Add(1)
}

func (m *Metrics) IncTrade() {
	if m == nil {
		return
	}
	m.trades.Add(1)
}

func (m *Metrics) IncStrategyFault() {
	if m == nil {
		return
	}
	m.strategyFaults.Add(1)
}

func (m *Metrics) IncObserverDrop() {
	if m == nil {
		return
	}
	m.observerDrops.Add(1)
}

func (m *Metrics) IncBreakerTrip() {
	if m == nil {
		return
	}
	m.breakerTrips.Add(1)
}

func (m *Metrics) IncPersistenceFailure() {
	if m == nil {
		return
	}
	m.persistenceFailures.Add(1)
}

func (m *Metrics) IncAlert() {
	if m == nil {
		return
	}
	m.alertsFired.Add(1)
}

// Snapshot returns a copy of the current metric values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	rejections := make(map[string]uint64)
	for i := range m.riskRejections {
		if v := m.riskRejections[i].Load(); v > 0 {
			rejections[risk.Reason(i).String()] = v
		}
	}
	return Snapshot{
		Ticks:               m.ticks.Load(),
		FeedAnomalies:       m.feedAnomalies.Load(),
		RiskRejections:      rejections,
		OrdersSubmitted:     m.ordersSubmitted.Load(),
		OrdersFilled:        m.ordersFilled.Load(),
		OrdersFailed:        m.ordersFailed.Load(),
		OrdersRateLimited:   m.ordersRateLimited.Load(),
		Trades:              m.trades.Load(),
		StrategyFaults:      m.strategyFaults.Load(),
		ObserverDrops:       m.observerDrops.Load(),
		BreakerTrips:        m.breakerTrips.Load(),
		PersistenceFailures: m.persistenceFailures.Load(),
		AlertsFired:         m.alertsFired.Load(),
		TickLatency:         m.tickLatency.Snapshot(),
		FeedLatency:         m.feedLatency.Snapshot(),
		VenueLatency:        m.venueLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	l.count.Add(1)
	l.sum.Add(nanos)

	for {
		cur := l.min.Load()
		if cur != 0 && nanos >= cur {
			break
		}
		if l.min.CompareAndSwap(cur, nanos) {
			break
		}
	}

	for {
		cur := l.max.Load()
		if nanos <= cur {
			break
		}
		if l.max.CompareAndSwap(cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load()),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
