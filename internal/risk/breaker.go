package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// State is the circuit breaker state.
type State uint8

const (
	StateNormal State = iota
	StateHalted
)

func (s State) String() string {
	if s == StateHalted {
		return "HALTED"
	}
	return "NORMAL"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NORMAL":
		*s = StateNormal
	case "HALTED":
		*s = StateHalted
	default:
		return fmt.Errorf("unknown breaker state %q", b)
	}
	return nil
}

// BreakerConfig holds the halt triggers. A zero trigger is disabled.
type BreakerConfig struct {
	DailyLossPercent  decimal.Decimal
	ConsecutiveLosses int
	DrawdownPercent   decimal.Decimal
	Cooldown          time.Duration
	RequireApproval   bool
}

// DefaultBreakerConfig mirrors the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		DailyLossPercent:  decimal.NewFromInt(10),
		ConsecutiveLosses: 5,
		DrawdownPercent:   decimal.NewFromInt(20),
		Cooldown:          time.Hour,
	}
}

func (c BreakerConfig) Validate() error {
	if c.DailyLossPercent.IsNegative() || c.DrawdownPercent.IsNegative() {
		return fmt.Errorf("invalid breaker config: negative percent")
	}
	if c.ConsecutiveLosses < 0 {
		return fmt.Errorf("invalid breaker config: negative consecutive losses")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("invalid breaker config: negative cooldown")
	}
	return nil
}

// BreakerState is the observable breaker snapshot.
type BreakerState struct {
	State      State     `json:"state"`
	HaltReason string    `json:"halt_reason,omitempty"`
	HaltedAt   time.Time `json:"halted_at"`
	Approved   bool      `json:"approved"`
}

func (s BreakerState) Halted() bool {
	return s.State == StateHalted
}

// breaker is the Normal/Halted state machine. Callers serialize access.
type breaker struct {
	cfg               BreakerConfig
	state             BreakerState
	consecutiveLosses int
	peakEquity        decimal.Decimal
}

func (b *breaker) trip(reason string, now time.Time) {
	b.state = BreakerState{
		State:      StateHalted,
		HaltReason: reason,
		HaltedAt:   now,
	}
}

// recover reopens trading once the cooldown elapsed and, when required,
// approval was given. It reports whether a transition happened.
func (b *breaker) recover(now time.Time) bool {
	if !b.state.Halted() {
		return false
	}
	if now.Sub(b.state.HaltedAt) < b.cfg.Cooldown {
		return false
	}
	if b.cfg.RequireApproval && !b.state.Approved {
		return false
	}
	b.state = BreakerState{State: StateNormal}
	b.consecutiveLosses = 0
	return true
}

// evaluate updates the trade-driven counters and trips the breaker when a
// trigger matches. It reports whether a transition happened.
func (b *breaker) evaluate(pnl, equity, dailyPnL, dayStartEquity decimal.Decimal, now time.Time) bool {
	if pnl.IsNegative() {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}
	if equity.GreaterThan(b.peakEquity) {
		b.peakEquity = equity
	}

	if b.state.Halted() {
		return false
	}

	if reason, ok := b.trigger(equity, dailyPnL, dayStartEquity); ok {
		b.trip(reason, now)
		return true
	}
	return false
}

func (b *breaker) trigger(equity, dailyPnL, dayStartEquity decimal.Decimal) (string, bool) {
	if b.cfg.DailyLossPercent.IsPositive() && dailyPnL.IsNegative() && dayStartEquity.IsPositive() {
		lossPct := dailyPnL.Neg().Div(dayStartEquity).Mul(hundred)
		if lossPct.GreaterThanOrEqual(b.cfg.DailyLossPercent) {
			return fmt.Sprintf("daily loss %s%% >= %s%%", lossPct.StringFixed(2), b.cfg.DailyLossPercent), true
		}
	}

	if b.cfg.ConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.ConsecutiveLosses {
		return fmt.Sprintf("%d consecutive losses", b.consecutiveLosses), true
	}

	if b.cfg.DrawdownPercent.IsPositive() && b.peakEquity.IsPositive() {
		dd := b.peakEquity.Sub(equity).Div(b.peakEquity).Mul(hundred)
		if dd.GreaterThanOrEqual(b.cfg.DrawdownPercent) {
			return fmt.Sprintf("drawdown %s%% >= %s%%", dd.StringFixed(2), b.cfg.DrawdownPercent), true
		}
	}

	return "", false
}
