// Package store defines the persistence boundary of the engine and its
// in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

// DailySummary aggregates the persisted activity since a cutoff.
type DailySummary struct {
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Fills       int             `json:"fills"`
}

// Repository persists trades, positions, orders and alerts. Records reference
// each other by id only.
type Repository interface {
	SaveTrade(ctx context.Context, trade model.Trade) error
	// GetPosition returns exception.ErrStorageNotFound for unknown instruments.
	GetPosition(ctx context.Context, instrumentID string) (model.Position, error)
	UpdatePosition(ctx context.Context, pos model.Position) error
	ClosePosition(ctx context.Context, instrumentID string, at time.Time) error
	GetDailyPnL(ctx context.Context, since time.Time) (DailySummary, error)
	// GetRecentTrades returns up to limit trades, newest first.
	GetRecentTrades(ctx context.Context, limit int) ([]model.Trade, error)
	SaveOrder(ctx context.Context, order model.Order) error
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// PriceHistory stores ticks for backtests and strategy context.
type PriceHistory interface {
	SaveTick(ctx context.Context, tick model.Tick) error
	// Ticks returns the ticks of an instrument in [from, to], oldest first.
	Ticks(ctx context.Context, instrumentID string, from, to time.Time) ([]model.Tick, error)
}
