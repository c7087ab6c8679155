package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one normalized market update for an instrument.
type Tick struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	BestBid      decimal.Decimal `json:"best_bid"`
	BestAsk      decimal.Decimal `json:"best_ask"`
	Timestamp    time.Time       `json:"timestamp"`
}

// HasBook reports whether both sides of the top of book are known.
func (t Tick) HasBook() bool {
	return t.BestBid.IsPositive() && t.BestAsk.IsPositive()
}

// Spread returns best ask minus best bid, or zero when the book is unknown.
func (t Tick) Spread() decimal.Decimal {
	if !t.HasBook() {
		return decimal.Zero
	}
	return t.BestAsk.Sub(t.BestBid)
}
