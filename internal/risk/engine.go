package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

// Reason explains a rejected admission.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonBreakerHalted
	ReasonDailyTradeLimit
	ReasonMaxPosition
	ReasonDailyLoss
	ReasonMaxTradeSize
	ReasonInvalidRequest
	reasonCount
)

// ReasonCount is the number of defined reasons, for metric tables.
const ReasonCount = int(reasonCount)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonBreakerHalted:
		return "BREAKER_HALTED"
	case ReasonDailyTradeLimit:
		return "DAILY_TRADE_LIMIT"
	case ReasonMaxPosition:
		return "MAX_POSITION"
	case ReasonDailyLoss:
		return "DAILY_LOSS"
	case ReasonMaxTradeSize:
		return "MAX_TRADE_SIZE"
	case ReasonInvalidRequest:
		return "INVALID_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Decision is the outcome of Admit. A rejection is a control signal, not an error.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision { return Decision{Allowed: true} }

func reject(reason Reason) Decision { return Decision{Reason: reason} }

// PositionView provides the current position size of an instrument.
type PositionView interface {
	PositionSize(instrumentID string) decimal.Decimal
}

// DailyStats are the aggregates of the current UTC day.
type DailyStats struct {
	Day               time.Time       `json:"day"`
	Trades            int             `json:"trades"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	StartEquity       decimal.Decimal `json:"start_equity"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
}

// Engine is the risk limiter and owner of the circuit breaker. All global
// risk state is mutated behind a single mutex.
type Engine struct {
	mu        sync.Mutex
	limits    Limits
	positions PositionView
	breaker   breaker

	day         time.Time
	dailyTrades int
	dailyPnL    decimal.Decimal
	dayStart    decimal.Decimal
	lastEquity  decimal.Decimal

	onTransition func(BreakerState)
}

// NewEngine creates a risk engine. initialEquity seeds the drawdown peak and
// the first day's starting equity.
func NewEngine(limits Limits, cfg BreakerConfig, positions PositionView, initialEquity decimal.Decimal) *Engine {
	return &Engine{
		limits:    limits.Clone(),
		positions: positions,
		breaker: breaker{
			cfg:        cfg,
			peakEquity: initialEquity,
		},
		dayStart:   initialEquity,
		lastEquity: initialEquity,
	}
}

// OnTransition registers a hook called after every breaker transition.
// The hook runs outside the engine lock.
func (e *Engine) OnTransition(fn func(BreakerState)) {
	e.mu.Lock()
	e.onTransition = fn
	e.mu.Unlock()
}

// Limits returns the limits snapshot.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Admit evaluates an order before it leaves the strategy engine. Checks run in
// order and stop at the first failure.
func (e *Engine) Admit(instrumentID string, side enum.Side, size decimal.Decimal, now time.Time) Decision {
	e.mu.Lock()
	e.rollDay(now)
	recovered := e.breaker.recover(now)
	decision := e.admit(instrumentID, side, size)
	state, hook := e.breaker.state, e.onTransition
	e.mu.Unlock()

	if recovered && hook != nil {
		hook(state)
	}
	return decision
}

func (e *Engine) admit(instrumentID string, side enum.Side, size decimal.Decimal) Decision {
	if e.breaker.state.Halted() {
		return reject(ReasonBreakerHalted)
	}

	if !side.IsAvailable() || !size.IsPositive() {
		return reject(ReasonInvalidRequest)
	}

	if e.limits.MaxDailyTrades > 0 && e.dailyTrades >= e.limits.MaxDailyTrades {
		return reject(ReasonDailyTradeLimit)
	}

	il := e.limits.For(instrumentID)
	if side == enum.SideBuy {
		if il.MaxPosition.IsPositive() && e.positions != nil {
			next := e.positions.PositionSize(instrumentID).Add(size)
			if next.GreaterThan(il.MaxPosition) {
				return reject(ReasonMaxPosition)
			}
		}

		if e.limits.MaxDailyLoss.IsPositive() && e.dailyPnL.LessThanOrEqual(e.limits.MaxDailyLoss.Neg()) {
			return reject(ReasonDailyLoss)
		}

		if il.MaxTradeSize.IsPositive() && size.GreaterThan(il.MaxTradeSize) {
			return reject(ReasonMaxTradeSize)
		}
	}

	return allow()
}

// RecordFill counts an executed order toward the daily trade limit.
func (e *Engine) RecordFill(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDay(now)
	e.dailyTrades++
}

// RecordTrade books a closed trade and re-evaluates the breaker triggers.
// equity is the account equity right after the trade.
func (e *Engine) RecordTrade(pnl, equity decimal.Decimal, now time.Time) BreakerState {
	e.mu.Lock()
	e.rollDay(now)
	e.dailyPnL = e.dailyPnL.Add(pnl)
	e.lastEquity = equity
	tripped := e.breaker.evaluate(pnl, equity, e.dailyPnL, e.dayStart, now)
	state, hook := e.breaker.state, e.onTransition
	e.mu.Unlock()

	if tripped && hook != nil {
		hook(state)
	}
	return state
}

// Breaker returns the breaker state, applying cooldown recovery first.
func (e *Engine) Breaker(now time.Time) BreakerState {
	e.mu.Lock()
	recovered := e.breaker.recover(now)
	state, hook := e.breaker.state, e.onTransition
	e.mu.Unlock()

	if recovered && hook != nil {
		hook(state)
	}
	return state
}

// Approve records the external approval required to leave Halted.
// It reports whether the breaker was halted.
func (e *Engine) Approve() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.breaker.state.Halted() {
		return false
	}
	e.breaker.state.Approved = true
	return true
}

// Halt trips the breaker manually.
func (e *Engine) Halt(reason string, now time.Time) {
	e.mu.Lock()
	e.breaker.trip(reason, now)
	state, hook := e.breaker.state, e.onTransition
	e.mu.Unlock()

	if hook != nil {
		hook(state)
	}
}

// RestoreBreaker reinstates a previously observed breaker state.
func (e *Engine) RestoreBreaker(state BreakerState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaker.state = state
}

// Seed initializes the daily aggregates from persisted history. recent is
// ordered newest first.
func (e *Engine) Seed(dailyPnL decimal.Decimal, dailyTrades int, recent []model.Trade, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDay(now)
	e.dailyPnL = dailyPnL
	e.dailyTrades = dailyTrades
	e.breaker.consecutiveLosses = 0
	for _, t := range recent {
		if !t.PnL.IsNegative() {
			break
		}
		e.breaker.consecutiveLosses++
	}
}

// Daily returns the aggregates of the current day.
func (e *Engine) Daily() DailyStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DailyStats{
		Day:               e.day,
		Trades:            e.dailyTrades,
		RealizedPnL:       e.dailyPnL,
		StartEquity:       e.dayStart,
		ConsecutiveLosses: e.breaker.consecutiveLosses,
	}
}

func (e *Engine) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.After(e.day) {
		return
	}
	if !e.day.IsZero() {
		e.dayStart = e.lastEquity
	}
	e.day = day
	e.dailyTrades = 0
	e.dailyPnL = decimal.Zero
}
