package pg

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

type tradeRow struct {
	ID           string          `gorm:"primaryKey;size:64"`
	OrderID      string          `gorm:"size:64;index"`
	InstrumentID string          `gorm:"size:128;index"`
	Price        decimal.Decimal `gorm:"type:numeric(20,8)"`
	Size         decimal.Decimal `gorm:"type:numeric(20,8)"`
	PnL          decimal.Decimal `gorm:"column:pnl;type:numeric(20,8)"`
	PnLPercent   decimal.Decimal `gorm:"column:pnl_percent;type:numeric(20,8)"`
	Reason       string          `gorm:"size:32"`
	Timestamp    time.Time       `gorm:"index"`
}

func (tradeRow) TableName() string { return "trades" }

func newTradeRow(t model.Trade) tradeRow {
	return tradeRow{
		ID:           t.ID,
		OrderID:      t.OrderID,
		InstrumentID: t.InstrumentID,
		Price:        t.Price,
		Size:         t.Size,
		PnL:          t.PnL,
		PnLPercent:   t.PnLPercent,
		Reason:       t.Reason.String(),
		Timestamp:    t.Timestamp.UTC(),
	}
}

func (r tradeRow) model() (model.Trade, error) {
	reason, err := enum.ParseTradeReason(r.Reason)
	if err != nil {
		return model.Trade{}, errors.Wrap(err, "decode trade row").With("trade_id", r.ID)
	}
	return model.Trade{
		ID:           r.ID,
		OrderID:      r.OrderID,
		InstrumentID: r.InstrumentID,
		Price:        r.Price,
		Size:         r.Size,
		PnL:          r.PnL,
		PnLPercent:   r.PnLPercent,
		Reason:       reason,
		Timestamp:    r.Timestamp.UTC(),
	}, nil
}

// positionRow holds open positions only; closing deletes the row.
type positionRow struct {
	InstrumentID string          `gorm:"primaryKey;size:128"`
	Size         decimal.Decimal `gorm:"type:numeric(20,8)"`
	AveragePrice decimal.Decimal `gorm:"type:numeric(20,8)"`
	CostBasis    decimal.Decimal `gorm:"type:numeric"`
	RealizedPnL  decimal.Decimal `gorm:"column:realized_pnl;type:numeric(20,8)"`
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

func (positionRow) TableName() string { return "positions" }

func newPositionRow(p model.Position) positionRow {
	return positionRow{
		InstrumentID: p.InstrumentID,
		Size:         p.Size,
		AveragePrice: p.AveragePrice,
		CostBasis:    p.CostBasis,
		RealizedPnL:  p.RealizedPnL,
		OpenedAt:     p.OpenedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (r positionRow) model() model.Position {
	return model.Position{
		InstrumentID: r.InstrumentID,
		Size:         r.Size,
		AveragePrice: r.AveragePrice,
		CostBasis:    r.CostBasis,
		RealizedPnL:  r.RealizedPnL,
		OpenedAt:     r.OpenedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type orderRow struct {
	ID           string          `gorm:"primaryKey;size:64"`
	InstrumentID string          `gorm:"size:128;index"`
	Side         string          `gorm:"size:8"`
	Style        string          `gorm:"size:16"`
	Price        decimal.Decimal `gorm:"type:numeric(20,8)"`
	Size         decimal.Decimal `gorm:"type:numeric(20,8)"`
	Status       string          `gorm:"size:16;index"`
	Reason       string          `gorm:"size:32"`
	VenueOrderID string          `gorm:"size:128"`
	Attempts     int
	Error        string
	CreatedAt    time.Time
	FilledAt     *time.Time `gorm:"index"`
}

func (orderRow) TableName() string { return "orders" }

func newOrderRow(o model.Order) orderRow {
	row := orderRow{
		ID:           o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side.String(),
		Style:        o.Style.String(),
		Price:        o.Price,
		Size:         o.Size,
		Status:       o.Status.String(),
		Reason:       o.Reason.String(),
		VenueOrderID: o.VenueOrderID,
		Attempts:     o.Attempts,
		Error:        o.Error,
		CreatedAt:    o.CreatedAt.UTC(),
	}
	if !o.FilledAt.IsZero() {
		filled := o.FilledAt.UTC()
		row.FilledAt = &filled
	}
	return row
}

func (r orderRow) model() (model.Order, error) {
	o := model.Order{
		ID:           r.ID,
		InstrumentID: r.InstrumentID,
		Price:        r.Price,
		Size:         r.Size,
		VenueOrderID: r.VenueOrderID,
		Attempts:     r.Attempts,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	var err error
	if o.Side, err = enum.ParseSide(r.Side); err != nil {
		return model.Order{}, errors.Wrap(err, "decode order row").With("order_id", r.ID)
	}
	if o.Reason, err = enum.ParseTradeReason(r.Reason); err != nil {
		return model.Order{}, errors.Wrap(err, "decode order row").With("order_id", r.ID)
	}
	if err = o.Style.UnmarshalText([]byte(r.Style)); err != nil {
		return model.Order{}, errors.Wrap(err, "decode order row").With("order_id", r.ID)
	}
	if err = o.Status.UnmarshalText([]byte(r.Status)); err != nil {
		return model.Order{}, errors.Wrap(err, "decode order row").With("order_id", r.ID)
	}
	if r.FilledAt != nil {
		o.FilledAt = r.FilledAt.UTC()
	}
	return o, nil
}

type alertRow struct {
	ID           string          `gorm:"primaryKey;size:64"`
	RuleName     string          `gorm:"size:128;index"`
	InstrumentID string          `gorm:"size:128"`
	Price        decimal.Decimal `gorm:"type:numeric(20,8)"`
	Message      string
	Timestamp    time.Time `gorm:"index"`
}

func (alertRow) TableName() string { return "alerts" }

func newAlertRow(a model.Alert) alertRow {
	return alertRow{
		ID:           a.ID,
		RuleName:     a.RuleName,
		InstrumentID: a.InstrumentID,
		Price:        a.Price,
		Message:      a.Message,
		Timestamp:    a.Timestamp.UTC(),
	}
}
