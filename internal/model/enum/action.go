package enum

import (
	"fmt"
	"strings"
)

// Action is the decision returned by a strategy for one tick.
type Action uint8

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
	_action_end
)

func (a Action) IsAvailable() bool {
	return a < _action_end
}

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func ParseAction(str string) (Action, error) {
	switch strings.ToUpper(str) {
	case "", "HOLD":
		return ActionHold, nil
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	}
	return ActionHold, fmt.Errorf("unknown action %q", str)
}
