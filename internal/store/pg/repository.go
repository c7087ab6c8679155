package pg

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/internal/store"
	"polytrader/pkg/exception"
)

// Repository persists engine records in PostgreSQL.
type Repository struct {
	db *gorm.DB
}

var _ store.Repository = (*Repository)(nil)

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	if err := db.AutoMigrate(&tradeRow{}, &positionRow{}, &orderRow{}, &alertRow{}); err != nil {
		return nil, yerrors.Wrap(err, "migrate schema")
	}
	return &Repository{db: db}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) SaveTrade(ctx context.Context, trade model.Trade) error {
	row := newTradeRow(trade)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return yerrors.Wrap(err, "save trade").With("trade_id", trade.ID)
	}
	return nil
}

func (r *Repository) GetPosition(ctx context.Context, instrumentID string) (model.Position, error) {
	var row positionRow
	err := r.db.WithContext(ctx).Where("instrument_id = ?", instrumentID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Position{}, exception.ErrStorageNotFound
	}
	if err != nil {
		return model.Position{}, yerrors.Wrap(err, "get position").With("instrument_id", instrumentID)
	}
	return row.model(), nil
}

func (r *Repository) UpdatePosition(ctx context.Context, pos model.Position) error {
	row := newPositionRow(pos)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "average_price", "cost_basis", "realized_pnl", "opened_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return yerrors.Wrap(err, "update position").With("instrument_id", pos.InstrumentID)
	}
	return nil
}

func (r *Repository) ClosePosition(ctx context.Context, instrumentID string, _ time.Time) error {
	if err := r.db.WithContext(ctx).Where("instrument_id = ?", instrumentID).Delete(&positionRow{}).Error; err != nil {
		return yerrors.Wrap(err, "close position").With("instrument_id", instrumentID)
	}
	return nil
}

func (r *Repository) GetDailyPnL(ctx context.Context, since time.Time) (store.DailySummary, error) {
	var pnl decimal.Decimal
	err := r.db.WithContext(ctx).Model(&tradeRow{}).
		Select("COALESCE(SUM(pnl), 0)").
		Where("timestamp >= ?", since.UTC()).
		Row().Scan(&pnl)
	if err != nil {
		return store.DailySummary{}, yerrors.Wrap(err, "sum daily pnl")
	}

	var fills int64
	err = r.db.WithContext(ctx).Model(&orderRow{}).
		Where("status = ? AND filled_at >= ?", enum.OrderStatusFilled.String(), since.UTC()).
		Count(&fills).Error
	if err != nil {
		return store.DailySummary{}, yerrors.Wrap(err, "count daily fills")
	}

	return store.DailySummary{RealizedPnL: pnl, Fills: int(fills)}, nil
}

func (r *Repository) GetRecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []tradeRow
	if err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, yerrors.Wrap(err, "get recent trades")
	}
	out := make([]model.Trade, 0, len(rows))
	for _, row := range rows {
		trade, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	return out, nil
}

func (r *Repository) SaveOrder(ctx context.Context, order model.Order) error {
	row := newOrderRow(order)
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return yerrors.Wrap(err, "save order").With("order_id", order.ID)
	}
	return nil
}

func (r *Repository) SaveAlert(ctx context.Context, alert model.Alert) error {
	row := newAlertRow(alert)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return yerrors.Wrap(err, "save alert").With("rule", alert.RuleName)
	}
	return nil
}

// Orders returns saved orders of an instrument, newest first.
func (r *Repository) Orders(ctx context.Context, instrumentID string, limit int) ([]model.Order, error) {
	var rows []orderRow
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if instrumentID != "" {
		q = q.Where("instrument_id = ?", instrumentID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, yerrors.Wrap(err, "list orders")
	}
	out := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}
