// Package mdg generates synthetic prediction-market ticks for dry runs and
// test recordings.
package mdg

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

var (
	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.RequireFromString("0.99")
)

// Config shapes the generated series.
type Config struct {
	Instruments []string
	Seed        int64
	StartPrice  decimal.Decimal
	// MaxStep bounds the per-tick move in price units.
	MaxStep decimal.Decimal
	// Spread is the distance between best bid and best ask.
	Spread     decimal.Decimal
	BaseVolume decimal.Decimal
}

// DefaultConfig starts every instrument at 0.50 with one cent moves.
func DefaultConfig(instruments ...string) Config {
	return Config{
		Instruments: instruments,
		Seed:        1,
		StartPrice:  decimal.RequireFromString("0.5"),
		MaxStep:     decimal.RequireFromString("0.01"),
		Spread:      decimal.RequireFromString("0.02"),
		BaseVolume:  decimal.NewFromInt(100),
	}
}

// Generator produces a bounded random walk per instrument, cycling through
// instruments in order.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	prices []decimal.Decimal
	index  int
}

func NewGenerator(cfg Config) (*Generator, error) {
	switch {
	case len(cfg.Instruments) == 0:
		return nil, fmt.Errorf("generator has no instruments")
	case cfg.StartPrice.LessThan(minPrice) || cfg.StartPrice.GreaterThan(maxPrice):
		return nil, fmt.Errorf("start price %s outside [%s, %s]", cfg.StartPrice, minPrice, maxPrice)
	case cfg.MaxStep.IsNegative() || cfg.Spread.IsNegative() || cfg.BaseVolume.IsNegative():
		return nil, fmt.Errorf("negative step, spread or volume")
	}
	prices := make([]decimal.Decimal, len(cfg.Instruments))
	for i := range prices {
		prices[i] = cfg.StartPrice
	}
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prices: prices,
	}, nil
}

// Next creates the next tick in sequence.
func (g *Generator) Next(now time.Time) model.Tick {
	i := g.index
	g.index = (g.index + 1) % len(g.cfg.Instruments)

	// step in [-MaxStep, MaxStep] in hundredths of the step
	step := g.cfg.MaxStep.Mul(decimal.NewFromInt(int64(g.rng.Intn(201) - 100))).Div(decimal.NewFromInt(100))
	price := clamp(g.prices[i].Add(step).Round(4))
	g.prices[i] = price

	half := g.cfg.Spread.Div(decimal.NewFromInt(2))
	volume := g.cfg.BaseVolume.Mul(decimal.NewFromFloat(0.5 + g.rng.Float64())).Round(2)
	return model.Tick{
		InstrumentID: g.cfg.Instruments[i],
		Price:        price,
		Volume:       volume,
		BestBid:      clamp(price.Sub(half)),
		BestAsk:      clamp(price.Add(half)),
		Timestamp:    now,
	}
}

// Series generates n ticks spaced by interval starting at start.
func (g *Generator) Series(start time.Time, interval time.Duration, n int) []model.Tick {
	out := make([]model.Tick, 0, n)
	for i := range n {
		out = append(out, g.Next(start.Add(time.Duration(i)*interval)))
	}
	return out
}

// Publisher receives generated ticks. The hub implements it.
type Publisher interface {
	PublishTick(ctx context.Context, tick model.Tick) error
}

// Run publishes one tick every interval until ctx is done.
func (g *Generator) Run(ctx context.Context, interval time.Duration, pub Publisher) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := pub.PublishTick(ctx, g.Next(now.UTC())); err != nil {
				return err
			}
		}
	}
}

func clamp(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.LessThan(minPrice):
		return minPrice
	case p.GreaterThan(maxPrice):
		return maxPrice
	}
	return p
}
