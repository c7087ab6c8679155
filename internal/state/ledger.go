package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

var hundred = decimal.NewFromInt(100)

// Ledger keeps per-instrument positions and the cash account. It is mutated
// only by fills.
type Ledger struct {
	mu          sync.RWMutex
	positions   map[string]*model.Position
	marks       map[string]decimal.Decimal
	cash        decimal.Decimal
	initialCash decimal.Decimal
}

// NewLedger creates an empty ledger holding initialCash.
func NewLedger(initialCash decimal.Decimal) *Ledger {
	return &Ledger{
		positions:   make(map[string]*model.Position),
		marks:       make(map[string]decimal.Decimal),
		cash:        initialCash,
		initialCash: initialCash,
	}
}

// ApplyFill books a fill. Buys average into the position; sells realize PnL
// and return the resulting trade (without id and reason).
func (l *Ledger) ApplyFill(fill model.Fill) (model.Position, *model.Trade, error) {
	if err := validateFill(fill); err != nil {
		return model.Position{}, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[fill.InstrumentID]
	if !ok {
		pos = &model.Position{InstrumentID: fill.InstrumentID}
	}

	switch fill.Side {
	case enum.SideBuy:
		cost := fill.Size.Mul(fill.Price)
		if pos.IsOpen() {
			pos.CostBasis = pos.CostBasis.Add(cost)
			pos.Size = pos.Size.Add(fill.Size)
			pos.AveragePrice = pos.CostBasis.Div(pos.Size)
		} else {
			pos.Size = fill.Size
			pos.CostBasis = cost
			pos.AveragePrice = fill.Price
			pos.OpenedAt = fill.Timestamp
		}
		pos.UpdatedAt = fill.Timestamp
		l.positions[fill.InstrumentID] = pos
		l.cash = l.cash.Sub(fill.Size.Mul(fill.Price))
		return l.view(pos), nil, nil

	default:
		if !pos.IsOpen() {
			return l.view(pos), nil, exception.ErrLedgerNoPosition
		}
		if fill.Size.GreaterThan(pos.Size) {
			return l.view(pos), nil, exception.ErrLedgerOversell
		}

		avg := pos.AveragePrice
		pnlPct := fill.Price.Sub(avg).Div(avg).Mul(hundred)

		remaining := pos.Size.Sub(fill.Size)
		if remaining.IsNegative() {
			panic(fmt.Sprintf("ledger: negative position %s on %s", remaining, fill.InstrumentID))
		}
		released := pos.CostBasis
		if remaining.IsPositive() {
			released = pos.CostBasis.Mul(fill.Size).Div(pos.Size)
		}
		pnl := fill.Size.Mul(fill.Price).Sub(released)

		pos.Size = remaining
		pos.CostBasis = pos.CostBasis.Sub(released)
		if remaining.IsZero() {
			pos.AveragePrice = decimal.Zero
			pos.CostBasis = decimal.Zero
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
		pos.UpdatedAt = fill.Timestamp
		l.cash = l.cash.Add(fill.Size.Mul(fill.Price))

		trade := &model.Trade{
			OrderID:      fill.OrderID,
			InstrumentID: fill.InstrumentID,
			Price:        fill.Price,
			Size:         fill.Size,
			PnL:          pnl,
			PnLPercent:   pnlPct,
			Timestamp:    fill.Timestamp,
		}
		return l.view(pos), trade, nil
	}
}

// Mark records the latest market price of an instrument for equity and
// unrealized PnL reads.
func (l *Ledger) Mark(instrumentID string, price decimal.Decimal) {
	l.mu.Lock()
	l.marks[instrumentID] = price
	l.mu.Unlock()
}

// Hydrate installs a persisted position for an instrument not yet tracked
// and pays its cost basis out of cash. It reports whether the position was
// installed.
func (l *Ledger) Hydrate(pos model.Position) bool {
	if pos.InstrumentID == "" || pos.Size.IsNegative() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.InstrumentID]; ok {
		return false
	}
	withCostBasis(&pos)
	pos.UnrealizedPnL = decimal.Zero
	l.positions[pos.InstrumentID] = &pos
	l.cash = l.cash.Sub(pos.CostBasis)
	return true
}

// withCostBasis fills in the cost basis of positions persisted with only an
// average price, and clears it on flat ones.
func withCostBasis(pos *model.Position) {
	if !pos.IsOpen() {
		pos.AveragePrice = decimal.Zero
		pos.CostBasis = decimal.Zero
		return
	}
	if !pos.CostBasis.IsPositive() {
		pos.CostBasis = pos.Size.Mul(pos.AveragePrice)
	}
}

// Position returns the position of an instrument with unrealized PnL
// against the latest mark.
func (l *Ledger) Position(instrumentID string) (model.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[instrumentID]
	if !ok {
		return model.Position{InstrumentID: instrumentID}, false
	}
	return l.view(pos), true
}

// PositionSize returns the held size of an instrument.
func (l *Ledger) PositionSize(instrumentID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos, ok := l.positions[instrumentID]; ok {
		return pos.Size
	}
	return decimal.Zero
}

// Positions returns every tracked position sorted by instrument.
func (l *Ledger) Positions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, l.view(pos))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InstrumentID < out[j].InstrumentID
	})
	return out
}

// UnrealizedPnL is size*(mark-average). It is never stored.
func UnrealizedPnL(pos model.Position, mark decimal.Decimal) decimal.Decimal {
	if !pos.IsOpen() {
		return decimal.Zero
	}
	return pos.Size.Mul(mark.Sub(pos.AveragePrice))
}

// UnrealizedPnL returns the unrealized PnL of an instrument at mark.
func (l *Ledger) UnrealizedPnL(instrumentID string, mark decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[instrumentID]
	if !ok {
		return decimal.Zero
	}
	return UnrealizedPnL(*pos, mark)
}

// RealizedPnL returns the cumulative realized PnL of an instrument.
func (l *Ledger) RealizedPnL(instrumentID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos, ok := l.positions[instrumentID]; ok {
		return pos.RealizedPnL
	}
	return decimal.Zero
}

func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

func (l *Ledger) InitialCash() decimal.Decimal {
	return l.initialCash
}

// Equity is cash plus every open position valued at its latest mark, or at
// its average price when no mark was seen.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	equity := l.cash
	for id, pos := range l.positions {
		if !pos.IsOpen() {
			continue
		}
		mark, ok := l.marks[id]
		if !ok {
			mark = pos.AveragePrice
		}
		equity = equity.Add(pos.Size.Mul(mark))
	}
	return equity
}

// Count returns the number of tracked instruments.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

func (l *Ledger) view(pos *model.Position) model.Position {
	out := *pos
	if mark, ok := l.marks[pos.InstrumentID]; ok {
		out.UnrealizedPnL = UnrealizedPnL(out, mark)
	} else {
		out.UnrealizedPnL = decimal.Zero
	}
	return out
}

func validateFill(fill model.Fill) error {
	switch {
	case fill.InstrumentID == "":
		return fmt.Errorf("%w: missing instrument", exception.ErrLedgerInvalidFill)
	case !fill.Side.IsAvailable():
		return fmt.Errorf("%w: invalid side", exception.ErrLedgerInvalidFill)
	case !fill.Price.IsPositive():
		return fmt.Errorf("%w: non-positive price", exception.ErrLedgerInvalidFill)
	case !fill.Size.IsPositive():
		return fmt.Errorf("%w: non-positive size", exception.ErrLedgerInvalidFill)
	}
	return nil
}
