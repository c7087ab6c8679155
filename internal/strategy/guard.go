package strategy

import (
	"fmt"

	"github.com/yanun0323/logs"

	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

// Guard runs a strategy inside a fault boundary. A panic, an error or a
// malformed signal becomes HOLD and is reported as *exception.StrategyFault.
type Guard struct {
	name     string
	strategy Strategy
}

func NewGuard(name string, s Strategy) *Guard {
	return &Guard{name: name, strategy: s}
}

func (g *Guard) Name() string {
	return g.name
}

// Decide never panics. The returned signal is HOLD whenever err is non-nil.
func (g *Guard) Decide(in Input) (sig Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = Hold("strategy fault")
			err = &exception.StrategyFault{Strategy: g.name, Cause: r}
			logs.Errorf("strategy %s panicked on %s, err: %+v", g.name, in.Market.Tick.InstrumentID, r)
		}
	}()

	if g.strategy == nil {
		return Hold("no strategy"), nil
	}

	sig, err = g.strategy.Decide(in)
	if err != nil {
		logs.Warnf("strategy %s failed on %s, err: %+v", g.name, in.Market.Tick.InstrumentID, err)
		return Hold("strategy fault"), &exception.StrategyFault{Strategy: g.name, Cause: err}
	}

	if !sig.Action.IsAvailable() {
		cause := fmt.Errorf("%w: %d", exception.ErrStrategyAction, sig.Action)
		return Hold("strategy fault"), &exception.StrategyFault{Strategy: g.name, Cause: cause}
	}
	if sig.Action != enum.ActionHold && sig.Amount.IsNegative() {
		cause := fmt.Errorf("%w: negative amount %s", exception.ErrStrategyAction, sig.Amount)
		return Hold("strategy fault"), &exception.StrategyFault{Strategy: g.name, Cause: cause}
	}
	return sig, nil
}
