package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polytrader/internal/model/enum"
)

// ThresholdConfig buys below BuyThreshold when flat and sells everything
// above SellThreshold. MaxSpread of zero disables the spread filter.
type ThresholdConfig struct {
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
	OrderSize     decimal.Decimal
	MaxSpread     decimal.Decimal
}

func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		BuyThreshold:  decimal.RequireFromString("0.30"),
		SellThreshold: decimal.RequireFromString("0.70"),
		OrderSize:     decimal.NewFromInt(10),
	}
}

func (c ThresholdConfig) Validate() error {
	switch {
	case !c.OrderSize.IsPositive():
		return fmt.Errorf("invalid threshold config: order size must be > 0")
	case c.BuyThreshold.IsNegative() || c.BuyThreshold.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("invalid threshold config: buy threshold outside [0,1]")
	case c.SellThreshold.IsNegative() || c.SellThreshold.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("invalid threshold config: sell threshold outside [0,1]")
	case c.MaxSpread.IsNegative():
		return fmt.Errorf("invalid threshold config: max spread must be >= 0")
	}
	return nil
}

// Threshold is the default price-band strategy.
type Threshold struct {
	cfg ThresholdConfig
}

func NewThreshold(cfg ThresholdConfig) (*Threshold, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Threshold{cfg: cfg}, nil
}

func (s *Threshold) Decide(in Input) (Signal, error) {
	holding := in.Position.IsOpen()

	if !holding && in.Price.LessThan(s.cfg.BuyThreshold) {
		tick := in.Market.Tick
		if s.cfg.MaxSpread.IsPositive() && tick.HasBook() && tick.Spread().GreaterThan(s.cfg.MaxSpread) {
			return Hold(fmt.Sprintf("spread %s > %s", tick.Spread(), s.cfg.MaxSpread)), nil
		}
		return Signal{
			Action: enum.ActionBuy,
			Amount: s.cfg.OrderSize,
			Reason: fmt.Sprintf("price %s < buy threshold %s", in.Price, s.cfg.BuyThreshold),
		}, nil
	}

	if holding && in.Price.GreaterThan(s.cfg.SellThreshold) {
		return Signal{
			Action: enum.ActionSell,
			Amount: in.Position.Size,
			Reason: fmt.Sprintf("price %s > sell threshold %s", in.Price, s.cfg.SellThreshold),
		}, nil
	}

	return Hold("no condition met"), nil
}
