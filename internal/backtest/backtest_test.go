package backtest

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/internal/store"
	"polytrader/internal/strategy"
	"polytrader/pkg/exception"
)

var t0 = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func series(prices ...string) []model.Tick {
	ticks := make([]model.Tick, 0, len(prices))
	for i, p := range prices {
		ticks = append(ticks, model.Tick{
			InstrumentID: "token-a",
			Price:        d(p),
			Volume:       d("50"),
			Timestamp:    t0.Add(time.Duration(i) * time.Minute),
		})
	}
	return ticks
}

func wave(n int) []model.Tick {
	prices := make([]string, 0, n)
	for i := range n {
		p := 0.5 + 0.35*math.Sin(float64(i)/20)
		prices = append(prices, decimal.NewFromFloat(p).StringFixed(2))
	}
	return series(prices...)
}

func threshold(t *testing.T) *strategy.Guard {
	t.Helper()
	s, err := strategy.NewThreshold(strategy.DefaultThresholdConfig())
	require.NoError(t, err)
	return strategy.NewGuard("threshold", s)
}

func TestRunIsDeterministic(t *testing.T) {
	ticks := wave(500)

	first, err := Run(t.Context(), DefaultConfig(), ticks, threshold(t))
	require.NoError(t, err)
	second, err := Run(t.Context(), DefaultConfig(), ticks, threshold(t))
	require.NoError(t, err)

	require.NotEmpty(t, first.Trades)
	a, err := sonic.ConfigStd.Marshal(first)
	require.NoError(t, err)
	b, err := sonic.ConfigStd.Marshal(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "two runs over the same ticks differ")

	assert.Len(t, first.EquityCurve, len(ticks))
	assert.Equal(t, "bt-trade-000001", first.Trades[0].ID)
}

func TestFlatSeries(t *testing.T) {
	prices := make([]string, 100)
	for i := range prices {
		prices[i] = "0.50"
	}
	res, err := Run(t.Context(), DefaultConfig(), series(prices...), threshold(t))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	for _, p := range res.EquityCurve {
		require.Equal(t, "1000", p.Equity.String())
	}
	a := res.Analysis
	assert.Zero(t, a.SharpeRatio)
	assert.True(t, a.MaxDrawdownPct.IsZero())
	assert.True(t, a.TotalPnL.IsZero())
	assert.Zero(t, a.TotalTrades)
	assert.True(t, a.WinRatePct.IsZero())
}

func TestOpenPositionClosedAtEnd(t *testing.T) {
	res, err := Run(t.Context(), DefaultConfig(), series("0.25", "0.28", "0.30"), threshold(t))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, enum.TradeReasonBacktestEnd, trade.Reason)
	assert.Equal(t, "0.3", trade.Price.String())
	assert.Equal(t, "0.5", trade.PnL.String())
	assert.Equal(t, t0.Add(2*time.Minute), trade.Timestamp)

	a := res.Analysis
	assert.Equal(t, "1000.5", a.FinalCapital.String())
	assert.Equal(t, "0.05", a.TotalReturnPct.String())
	assert.Equal(t, "100", a.WinRatePct.String())
	assert.Equal(t, "1000.5", res.EquityCurve[len(res.EquityCurve)-1].Cash.String())
}

func TestStopLossInReplay(t *testing.T) {
	res, err := Run(t.Context(), DefaultConfig(), series("0.25", "0.22", "0.19", "0.50"), threshold(t))
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	assert.Equal(t, enum.TradeReasonStopLoss, res.Trades[0].Reason)
	assert.Equal(t, "-0.6", res.Trades[0].PnL.String())
	assert.Equal(t, 1, res.Analysis.LosingTrades)
}

func TestRunCancelledBetweenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	calls := 0
	guard := strategy.NewGuard("cancel", strategy.Func(func(strategy.Input) (strategy.Signal, error) {
		calls++
		if calls == 5 {
			cancel()
		}
		return strategy.Hold("wait"), nil
	}))

	res, err := Run(ctx, DefaultConfig(), wave(50), guard)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 5, res.Ticks)
	assert.Len(t, res.EquityCurve, 5)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := Run(t.Context(), DefaultConfig(), nil, threshold(t))
	assert.ErrorIs(t, err, ErrNoTicks)

	cfg := DefaultConfig()
	cfg.InitialCapital = decimal.Zero
	_, err = Run(t.Context(), cfg, series("0.5"), threshold(t))
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)

	_, err = Run(t.Context(), DefaultConfig(), series("0.5"), nil)
	assert.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestAnalyze(t *testing.T) {
	curve := []EquityPoint{
		{Equity: d("100")},
		{Equity: d("110")},
		{Equity: d("99")},
		{Equity: d("120")},
	}
	trades := []model.Trade{
		{PnL: d("2")},
		{PnL: d("-1")},
		{PnL: d("3")},
		{PnL: d("-3")},
	}

	a := Analyze(d("100"), d("120"), curve, trades, 0)
	assert.Equal(t, "20", a.TotalPnL.String())
	assert.Equal(t, "20", a.TotalReturnPct.String())
	assert.Equal(t, 4, a.TotalTrades)
	assert.Equal(t, "50", a.WinRatePct.String())
	assert.Equal(t, "2.5", a.AvgWin.String())
	assert.Equal(t, "-2", a.AvgLoss.String())
	assert.Equal(t, "1.25", a.PayoffRatio.String())
	assert.Equal(t, "10", a.MaxDrawdownPct.String())
	assert.Greater(t, a.SharpeRatio, 0.0)

	capped := Sharpe(curve, 1)
	assert.InDelta(t, a.SharpeRatio/math.Sqrt(3), capped, 1e-3)
}

func TestServiceRun(t *testing.T) {
	mem := store.NewMemory()
	for _, tick := range series("0.25", "0.28", "0.30") {
		require.NoError(t, mem.SaveTick(t.Context(), tick))
	}

	svc, err := NewService(mem, DefaultConfig(), threshold(t))
	require.NoError(t, err)
	svc.now = func() time.Time { return t0.Add(time.Hour) }

	res, err := svc.Run(t.Context(), "token-a", 1, d("500"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ticks)
	assert.Equal(t, "500", res.Analysis.InitialCapital.String())
	assert.Equal(t, "500.5", res.Analysis.FinalCapital.String())

	_, err = svc.Run(t.Context(), "token-b", 1, d("500"))
	assert.ErrorIs(t, err, ErrNoTicks)

	_, err = svc.Run(t.Context(), "token-a", 0, d("500"))
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, res))
	assert.Contains(t, buf.String(), "final capital    500.50")
}
