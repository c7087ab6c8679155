package model

import (
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model/enum"
)

// Trade is the realization of a closing or reducing fill. Append-only.
type Trade struct {
	ID           string           `json:"id"`
	OrderID      string           `json:"order_id"`
	InstrumentID string           `json:"instrument_id"`
	Price        decimal.Decimal  `json:"price"`
	Size         decimal.Decimal  `json:"size"`
	PnL          decimal.Decimal  `json:"pnl"`
	PnLPercent   decimal.Decimal  `json:"pnl_percent"`
	Reason       enum.TradeReason `json:"reason"`
	Timestamp    time.Time        `json:"timestamp"`
}

func (t Trade) IsWin() bool {
	return t.PnL.IsPositive()
}

// Alert is a triggered alert rule, stored independently of trades.
type Alert struct {
	ID           string          `json:"id"`
	RuleName     string          `json:"rule_name"`
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Message      string          `json:"message"`
	Timestamp    time.Time       `json:"timestamp"`
}
