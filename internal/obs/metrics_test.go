package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"polytrader/internal/risk"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Millisecond)
	m.IncRiskRejection(risk.ReasonMaxPosition)
	m.IncObserverDrop()
	assert.Equal(t, Snapshot{}, m.Snapshot())

	var s *Sequencer
	assert.Zero(t, s.Next())
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveTick(2 * time.Millisecond)
	m.ObserveTick(4 * time.Millisecond)
	m.IncRiskRejection(risk.ReasonBreakerHalted)
	m.IncRiskRejection(risk.ReasonBreakerHalted)
	m.IncRiskRejection(risk.Reason(200))
	m.IncOrderFilled()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Ticks)
	assert.Equal(t, map[string]uint64{"BREAKER_HALTED": 2}, snap.RiskRejections)
	assert.Equal(t, uint64(1), snap.OrdersFilled)
	assert.Equal(t, LatencySnapshot{Count: 2, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond, Avg: 3 * time.Millisecond}, snap.TickLatency)
}

func TestSequencerConcurrent(t *testing.T) {
	s := NewSequencer(10)
	var wg sync.WaitGroup
	seen := sync.Map{}
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, dup := seen.LoadOrStore(s.Next(), struct{}{})
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(810), s.Last())
}
