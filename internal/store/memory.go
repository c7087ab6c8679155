package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

// Memory is a Repository and PriceHistory kept in process memory. It backs
// dry runs without a database and tests.
type Memory struct {
	mu        sync.RWMutex
	trades    []model.Trade
	positions map[string]model.Position
	orders    map[string]model.Order
	alerts    []model.Alert
	ticks     map[string][]model.Tick
}

func NewMemory() *Memory {
	return &Memory{
		positions: make(map[string]model.Position),
		orders:    make(map[string]model.Order),
		ticks:     make(map[string][]model.Tick),
	}
}

var (
	_ Repository   = (*Memory)(nil)
	_ PriceHistory = (*Memory)(nil)
)

func (m *Memory) SaveTrade(_ context.Context, trade model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *Memory) GetPosition(_ context.Context, instrumentID string) (model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[instrumentID]
	if !ok {
		return model.Position{}, exception.ErrStorageNotFound
	}
	return pos, nil
}

func (m *Memory) UpdatePosition(_ context.Context, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.InstrumentID] = pos
	return nil
}

func (m *Memory) ClosePosition(_ context.Context, instrumentID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, instrumentID)
	return nil
}

func (m *Memory) GetDailyPnL(_ context.Context, since time.Time) (DailySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum DailySummary
	for _, t := range m.trades {
		if !t.Timestamp.Before(since) {
			sum.RealizedPnL = sum.RealizedPnL.Add(t.PnL)
		}
	}
	for _, o := range m.orders {
		if o.Status == enum.OrderStatusFilled && !o.FilledAt.Before(since) {
			sum.Fills++
		}
	}
	return sum, nil
}

func (m *Memory) GetRecentTrades(_ context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Trade, 0, min(limit, len(m.trades)))
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *Memory) SaveOrder(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *Memory) SaveAlert(_ context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *Memory) SaveTick(_ context.Context, tick model.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[tick.InstrumentID] = append(m.ticks[tick.InstrumentID], tick)
	return nil
}

func (m *Memory) Ticks(_ context.Context, instrumentID string, from, to time.Time) ([]model.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tick
	for _, t := range m.ticks[instrumentID] {
		if t.Timestamp.Before(from) || t.Timestamp.After(to) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Trades returns every saved trade in insertion order.
func (m *Memory) Trades() []model.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Trade(nil), m.trades...)
}

// Orders returns every saved order sorted by id.
func (m *Memory) Orders() []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Alerts returns every saved alert in insertion order.
func (m *Memory) Alerts() []model.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Alert(nil), m.alerts...)
}
