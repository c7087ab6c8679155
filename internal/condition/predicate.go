package condition

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Predicate is a pure check over a tick and the instrument's recent history.
// Predicates that need history return false when there is not enough of it.
type Predicate interface {
	Match(tick model.Tick, history *History) bool
	String() string
}

type priceBelow struct{ threshold decimal.Decimal }

// PriceBelow matches when the tick price is strictly below threshold.
func PriceBelow(threshold decimal.Decimal) Predicate {
	return priceBelow{threshold: threshold}
}

func (p priceBelow) Match(tick model.Tick, _ *History) bool {
	return tick.Price.LessThan(p.threshold)
}

func (p priceBelow) String() string {
	return fmt.Sprintf("price < %s", p.threshold)
}

type priceAbove struct{ threshold decimal.Decimal }

// PriceAbove matches when the tick price is strictly above threshold.
func PriceAbove(threshold decimal.Decimal) Predicate {
	return priceAbove{threshold: threshold}
}

func (p priceAbove) Match(tick model.Tick, _ *History) bool {
	return tick.Price.GreaterThan(p.threshold)
}

func (p priceAbove) String() string {
	return fmt.Sprintf("price > %s", p.threshold)
}

type volumeAbove struct{ threshold decimal.Decimal }

// VolumeAbove matches when the tick volume is strictly above threshold.
func VolumeAbove(threshold decimal.Decimal) Predicate {
	return volumeAbove{threshold: threshold}
}

func (p volumeAbove) Match(tick model.Tick, _ *History) bool {
	return tick.Volume.GreaterThan(p.threshold)
}

func (p volumeAbove) String() string {
	return fmt.Sprintf("volume > %s", p.threshold)
}

type changePercent struct {
	window  time.Duration
	percent decimal.Decimal
}

// ChangePercentOver compares the tick price with the newest history sample
// that is at least window old. A positive percent matches a rise of at
// least percent; a negative percent matches a fall of at least |percent|.
func ChangePercentOver(window time.Duration, percent decimal.Decimal) Predicate {
	return changePercent{window: window, percent: percent}
}

func (p changePercent) Match(tick model.Tick, history *History) bool {
	ref, ok := history.AtOrBefore(tick.Timestamp.Add(-p.window))
	if !ok || ref.Price.IsZero() {
		return false
	}

	change := ChangePercent(ref.Price, tick.Price)
	if p.percent.IsNegative() {
		return change.LessThanOrEqual(p.percent)
	}
	return change.GreaterThanOrEqual(p.percent)
}

func (p changePercent) String() string {
	return fmt.Sprintf("change %s%% over %s", p.percent, p.window)
}

// ChangePercent returns (to-from)/from*100. from must be non-zero.
func ChangePercent(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Div(from).Mul(hundred)
}
