package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the net holding and cost basis for one instrument.
// AveragePrice is meaningful only while Size is positive. CostBasis is the
// exact amount paid for the held size; AveragePrice is derived from it.
type Position struct {
	InstrumentID  string          `json:"instrument_id"`
	Size          decimal.Decimal `json:"size"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p Position) IsOpen() bool {
	return p.Size.IsPositive()
}
