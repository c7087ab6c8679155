package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/model"
	"polytrader/internal/recorder"
	"polytrader/internal/strategy"
	"polytrader/pkg/exception"
)

// Source loads historical ticks of one instrument in [from, to], oldest first.
// store.PriceHistory satisfies it.
type Source interface {
	Ticks(ctx context.Context, instrumentID string, from, to time.Time) ([]model.Tick, error)
}

// WALSource reads ticks from recorded WAL segments.
type WALSource struct {
	Dir string
}

func (s WALSource) Ticks(ctx context.Context, instrumentID string, from, to time.Time) ([]model.Tick, error) {
	return recorder.LoadTicks(ctx, s.Dir, instrumentID, from, to)
}

// Service runs backtests over a history source.
type Service struct {
	source Source
	cfg    Config
	strat  *strategy.Guard
	now    func() time.Time
}

// NewService creates a service. cfg.InitialCapital is replaced per run.
func NewService(source Source, cfg Config, strat *strategy.Guard) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: history source", exception.ErrNilInstance)
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: strategy", exception.ErrNilInstance)
	}
	return &Service{source: source, cfg: cfg, strat: strat, now: time.Now}, nil
}

// Run backtests the last days of an instrument's history.
func (s *Service) Run(ctx context.Context, instrumentID string, days int, initialCapital decimal.Decimal) (Result, error) {
	if instrumentID == "" || days <= 0 {
		return Result{}, fmt.Errorf("%w: instrument %q days %d", exception.ErrInvalidArgument, instrumentID, days)
	}
	to := s.now().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	ticks, err := s.source.Ticks(ctx, instrumentID, from, to)
	if err != nil {
		return Result{}, err
	}
	if len(ticks) == 0 {
		return Result{}, fmt.Errorf("%w: %s between %s and %s", ErrNoTicks, instrumentID, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	cfg := s.cfg
	cfg.InitialCapital = initialCapital
	first, last := Span(ticks)
	logs.Infof("backtest %s with %s over %d ticks from %s to %s", instrumentID, s.strat.Name(), len(ticks), first.Format(time.RFC3339), last.Format(time.RFC3339))

	res, err := Run(ctx, cfg, ticks, s.strat)
	if err != nil {
		return res, err
	}
	a := res.Analysis
	logs.Infof("backtest %s done, pnl %s (%s%%), trades %d, win rate %s%%, sharpe %.4f, max drawdown %s%%",
		instrumentID, a.TotalPnL, a.TotalReturnPct, a.TotalTrades, a.WinRatePct, a.SharpeRatio, a.MaxDrawdownPct)
	return res, nil
}
