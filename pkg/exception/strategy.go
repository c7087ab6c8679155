package exception

import (
	"fmt"

	"github.com/yanun0323/errors"
)

var (
	ErrStrategyUnknown = errors.New("strategy: unknown strategy")
	ErrStrategyAction  = errors.New("strategy: unknown action")
)

// StrategyFault wraps a panic or error raised inside a user strategy.
type StrategyFault struct {
	Strategy string
	Cause    any
}

func (f *StrategyFault) Error() string {
	return fmt.Sprintf("strategy fault in %s: %v", f.Strategy, f.Cause)
}

func (f *StrategyFault) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}
