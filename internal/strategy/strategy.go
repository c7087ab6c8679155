// Package strategy defines the plug-in boundary between the engine and user
// trading logic.
package strategy

import (
	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

// Market is the market context of one decision.
type Market struct {
	Tick model.Tick
	// History is a copy of the recent ticks, oldest first, including Tick.
	History []model.Tick
	Cash    decimal.Decimal
}

// Input is everything a strategy sees for one tick.
type Input struct {
	Price    decimal.Decimal
	Position model.Position
	Market   Market
}

// Signal is the decision of a strategy. Amount is in contract units.
type Signal struct {
	Action enum.Action
	Amount decimal.Decimal
	Reason string
}

// Hold returns a no-op signal.
func Hold(reason string) Signal {
	return Signal{Action: enum.ActionHold, Reason: reason}
}

// IsHold reports whether the signal places no order.
func (s Signal) IsHold() bool {
	return s.Action == enum.ActionHold || !s.Amount.IsPositive()
}

// Strategy decides what to do on a tick. Implementations must not keep
// references to the input between calls.
type Strategy interface {
	Decide(in Input) (Signal, error)
}

// Func adapts a plain function to Strategy.
type Func func(in Input) (Signal, error)

func (f Func) Decide(in Input) (Signal, error) {
	return f(in)
}
