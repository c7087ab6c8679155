package model

import (
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model/enum"
)

// OrderRequest is produced by the strategy engine and consumed by the executor.
type OrderRequest struct {
	ClientOrderID string           `json:"client_order_id"`
	InstrumentID  string           `json:"instrument_id"`
	Side          enum.Side        `json:"side"`
	Style         enum.OrderStyle  `json:"style"`
	Price         decimal.Decimal  `json:"price"`
	Size          decimal.Decimal  `json:"size"`
	Reason        enum.TradeReason `json:"reason"`
}

// Order is the executor's record of an accepted request.
type Order struct {
	ID           string           `json:"id"`
	InstrumentID string           `json:"instrument_id"`
	Side         enum.Side        `json:"side"`
	Style        enum.OrderStyle  `json:"style"`
	Price        decimal.Decimal  `json:"price"`
	Size         decimal.Decimal  `json:"size"`
	Status       enum.OrderStatus `json:"status"`
	Reason       enum.TradeReason `json:"reason"`
	VenueOrderID string           `json:"venue_order_id,omitempty"`
	Attempts     int              `json:"attempts"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	FilledAt     time.Time        `json:"filled_at"`
}

// Fill is an execution report applied to the ledger.
type Fill struct {
	OrderID      string          `json:"order_id"`
	InstrumentID string          `json:"instrument_id"`
	Side         enum.Side       `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Timestamp    time.Time       `json:"timestamp"`
}
