package risk

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOrderWindow is the rolling window for the order rate limit.
const DefaultOrderWindow = 60 * time.Second

// InstrumentLimits bounds exposure on a single instrument. Zero means unlimited.
type InstrumentLimits struct {
	MaxPosition  decimal.Decimal
	MaxTradeSize decimal.Decimal
}

// Limits is an immutable snapshot of the risk configuration.
type Limits struct {
	Default            InstrumentLimits
	Instruments        map[string]InstrumentLimits
	StopLossPercent    decimal.Decimal
	TakeProfitPercent  decimal.Decimal
	MaxDailyLoss       decimal.Decimal
	MaxDailyTrades     int
	MaxOrdersPerWindow int
	OrderWindow        time.Duration
}

// DefaultLimits mirrors the conservative defaults used in production.
func DefaultLimits() Limits {
	return Limits{
		Default: InstrumentLimits{
			MaxPosition:  decimal.NewFromInt(100),
			MaxTradeSize: decimal.NewFromInt(50),
		},
		StopLossPercent:    decimal.NewFromInt(20),
		TakeProfitPercent:  decimal.NewFromInt(50),
		MaxDailyLoss:       decimal.NewFromInt(50),
		MaxDailyTrades:     100,
		MaxOrdersPerWindow: 10,
		OrderWindow:        DefaultOrderWindow,
	}
}

// Clone returns a copy that shares no map with the receiver.
func (l Limits) Clone() Limits {
	l.Instruments = maps.Clone(l.Instruments)
	return l
}

// For resolves the limits of one instrument, falling back to the defaults
// field by field.
func (l Limits) For(instrumentID string) InstrumentLimits {
	out := l.Default
	override, ok := l.Instruments[instrumentID]
	if !ok {
		return out
	}
	if !override.MaxPosition.IsZero() {
		out.MaxPosition = override.MaxPosition
	}
	if !override.MaxTradeSize.IsZero() {
		out.MaxTradeSize = override.MaxTradeSize
	}
	return out
}

// Validate checks if the limits are usable.
func (l Limits) Validate() error {
	if l.Default.MaxPosition.IsNegative() || l.Default.MaxTradeSize.IsNegative() {
		return fmt.Errorf("invalid risk limits: negative default limit")
	}
	for id, il := range l.Instruments {
		if il.MaxPosition.IsNegative() || il.MaxTradeSize.IsNegative() {
			return fmt.Errorf("invalid risk limits: negative limit for %s", id)
		}
	}
	if l.StopLossPercent.IsNegative() || l.TakeProfitPercent.IsNegative() {
		return fmt.Errorf("invalid risk limits: negative exit percent")
	}
	if l.MaxDailyLoss.IsNegative() {
		return fmt.Errorf("invalid risk limits: negative max daily loss")
	}
	if l.MaxDailyTrades < 0 || l.MaxOrdersPerWindow < 0 {
		return fmt.Errorf("invalid risk limits: negative count limit")
	}
	if l.OrderWindow < 0 {
		return fmt.Errorf("invalid risk limits: negative order window")
	}
	return nil
}
