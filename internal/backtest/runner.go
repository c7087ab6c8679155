// Package backtest replays historical ticks through a fresh engine in
// simulated mode and analyzes the result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/engine"
	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/internal/og"
	"polytrader/internal/risk"
	"polytrader/internal/state"
	"polytrader/internal/strategy"
	"polytrader/pkg/exception"
)

var ErrNoTicks = errors.New("backtest has no ticks")

// Config is the setup of one run. Zero Limits select risk.DefaultLimits.
type Config struct {
	InitialCapital decimal.Decimal
	Limits         risk.Limits
	Breaker        risk.BreakerConfig
	Slippage       og.Slippage
	HistorySize    int
	Annualization  int
}

// DefaultConfig returns a run with 1000 of starting capital and default limits.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(1000),
		Limits:         risk.DefaultLimits(),
		Annualization:  DefaultAnnualization,
	}
}

// Result is everything a run produced.
type Result struct {
	Strategy    string        `json:"strategy"`
	Ticks       int           `json:"ticks"`
	Cancelled   bool          `json:"cancelled"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []model.Trade `json:"trades"`
	Analysis    Analysis      `json:"analysis"`
}

// collector keeps closing trades in booking order.
type collector struct {
	trades []model.Trade
}

func (c *collector) OnFill(model.Fill) {}

func (c *collector) OnTrade(t model.Trade) {
	c.trades = append(c.trades, t)
}

// Run replays ticks in order. The tick timestamps are the only clock, so the
// same input always yields the same result. Open positions are closed at the
// last price of their instrument with BACKTEST_END. Cancellation stops the
// run between ticks and returns the partial result with the context error.
func Run(ctx context.Context, cfg Config, ticks []model.Tick, strat *strategy.Guard) (Result, error) {
	if len(ticks) == 0 {
		return Result{}, ErrNoTicks
	}
	if strat == nil {
		return Result{}, fmt.Errorf("%w: strategy", exception.ErrNilInstance)
	}
	if !cfg.InitialCapital.IsPositive() {
		return Result{}, fmt.Errorf("%w: initial capital %s", exception.ErrInvalidArgument, cfg.InitialCapital)
	}
	if cfg.Limits.OrderWindow == 0 {
		cfg.Limits = risk.DefaultLimits()
	}

	ledger := state.NewLedger(cfg.InitialCapital)
	executor, err := og.NewExecutor(og.Config{
		Mode:               og.ModeSimulated,
		MaxOrdersPerWindow: cfg.Limits.MaxOrdersPerWindow,
		Window:             cfg.Limits.OrderWindow,
	}, nil, &og.SequenceGenerator{Prefix: "bt-order"})
	if err != nil {
		return Result{}, err
	}

	trades := &collector{}
	eng, err := engine.New(engine.Config{
		HistorySize: cfg.HistorySize,
		Slippage:    cfg.Slippage,
	}, engine.Deps{
		Risk:     risk.NewEngine(cfg.Limits, cfg.Breaker, ledger, cfg.InitialCapital),
		Ledger:   ledger,
		Executor: executor,
		Strategy: strat,
		TradeIDs: &og.SequenceGenerator{Prefix: "bt-trade"},
		Listener: trades,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Strategy:    strat.Name(),
		EquityCurve: make([]EquityPoint, 0, len(ticks)),
	}
	last := map[string]model.Tick{}
	var order []string

	var runErr error
	for _, tick := range ticks {
		if err := ctx.Err(); err != nil {
			res.Cancelled, runErr = true, err
			break
		}
		out := eng.OnTick(ctx, tick)
		if out.Err != nil && !errors.Is(out.Err, exception.ErrOrderRateLimited) {
			logs.Debugf("backtest tick %s at %s, err: %+v", tick.InstrumentID, tick.Timestamp, out.Err)
		}
		if tick.InstrumentID != "" && tick.Price.IsPositive() {
			if _, seen := last[tick.InstrumentID]; !seen {
				order = append(order, tick.InstrumentID)
			}
			last[tick.InstrumentID] = tick
		}
		res.Ticks++
		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: tick.Timestamp,
			Equity:    ledger.Equity(),
			Cash:      ledger.Cash(),
		})
	}

	if !res.Cancelled {
		for _, id := range order {
			tick := last[id]
			if _, err := eng.ForceClose(ctx, id, tick.Price, enum.TradeReasonBacktestEnd, tick.Timestamp); err != nil {
				return res, err
			}
		}
		if n := len(res.EquityCurve); n > 0 {
			res.EquityCurve[n-1].Equity = ledger.Equity()
			res.EquityCurve[n-1].Cash = ledger.Cash()
		}
	}

	res.Trades = trades.trades
	res.Analysis = Analyze(cfg.InitialCapital, ledger.Equity(), res.EquityCurve, res.Trades, cfg.Annualization)
	return res, runErr
}

// Span is the time range covered by ticks.
func Span(ticks []model.Tick) (time.Time, time.Time) {
	if len(ticks) == 0 {
		return time.Time{}, time.Time{}
	}
	return ticks[0].Timestamp, ticks[len(ticks)-1].Timestamp
}
