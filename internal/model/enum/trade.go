package enum

import "fmt"

// TradeReason tags what triggered a closing fill.
type TradeReason uint8

const (
	_trade_reason_beg TradeReason = iota
	TradeReasonStrategy
	TradeReasonStopLoss
	TradeReasonTakeProfit
	TradeReasonBacktestEnd
	_trade_reason_end
)

func (r TradeReason) IsAvailable() bool {
	return r > _trade_reason_beg && r < _trade_reason_end
}

func (r TradeReason) String() string {
	switch r {
	case TradeReasonStrategy:
		return "STRATEGY"
	case TradeReasonStopLoss:
		return "STOP_LOSS"
	case TradeReasonTakeProfit:
		return "TAKE_PROFIT"
	case TradeReasonBacktestEnd:
		return "BACKTEST_END"
	default:
		return "UNKNOWN"
	}
}

func (r TradeReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *TradeReason) UnmarshalText(b []byte) error {
	v, err := ParseTradeReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func ParseTradeReason(str string) (TradeReason, error) {
	for v := _trade_reason_beg + 1; v < _trade_reason_end; v++ {
		if v.String() == str {
			return v, nil
		}
	}
	return _trade_reason_beg, fmt.Errorf("unknown trade reason %q", str)
}
