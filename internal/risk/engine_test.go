package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

type fakePositions map[string]decimal.Decimal

func (f fakePositions) PositionSize(id string) decimal.Decimal {
	return f[id]
}

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestEngine(limits Limits, cfg BreakerConfig, pos fakePositions) *Engine {
	return NewEngine(limits, cfg, pos, d("1000"))
}

func TestAdmitChecksInOrder(t *testing.T) {
	limits := DefaultLimits()
	limits.Default = InstrumentLimits{MaxPosition: d("100"), MaxTradeSize: d("40")}
	limits.MaxDailyTrades = 2
	limits.MaxDailyLoss = d("50")

	t.Run("allow", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{})
		assert.Equal(t, Decision{Allowed: true}, e.Admit("a", enum.SideBuy, d("10"), t0))
	})

	t.Run("halted wins over everything", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{Cooldown: time.Hour}, fakePositions{"a": d("100")})
		e.Halt("manual", t0)
		e.RecordFill(t0)
		e.RecordFill(t0)
		got := e.Admit("a", enum.SideBuy, d("500"), t0)
		assert.Equal(t, ReasonBreakerHalted, got.Reason)
		assert.False(t, got.Allowed)
	})

	t.Run("daily trade limit before position", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{"a": d("100")})
		e.RecordFill(t0)
		e.RecordFill(t0)
		assert.Equal(t, ReasonDailyTradeLimit, e.Admit("a", enum.SideBuy, d("10"), t0).Reason)
		assert.Equal(t, ReasonDailyTradeLimit, e.Admit("a", enum.SideSell, d("10"), t0).Reason)
	})

	t.Run("max position only for buys", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{"a": d("95")})
		assert.Equal(t, ReasonMaxPosition, e.Admit("a", enum.SideBuy, d("10"), t0).Reason)
		assert.True(t, e.Admit("a", enum.SideBuy, d("5"), t0).Allowed)
		assert.True(t, e.Admit("a", enum.SideSell, d("10"), t0).Allowed)
	})

	t.Run("daily loss blocks buys", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{"a": d("10")})
		e.RecordTrade(d("-50"), d("950"), t0)
		assert.Equal(t, ReasonDailyLoss, e.Admit("a", enum.SideBuy, d("10"), t0).Reason)
		assert.True(t, e.Admit("a", enum.SideSell, d("10"), t0).Allowed)
	})

	t.Run("max trade size", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{})
		assert.Equal(t, ReasonMaxTradeSize, e.Admit("a", enum.SideBuy, d("41"), t0).Reason)
	})

	t.Run("max trade size never blocks a sell", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{"a": d("90")})
		assert.True(t, e.Admit("a", enum.SideSell, d("90"), t0).Allowed)
	})

	t.Run("invalid request", func(t *testing.T) {
		e := newTestEngine(limits, BreakerConfig{}, fakePositions{})
		assert.Equal(t, ReasonInvalidRequest, e.Admit("a", enum.SideBuy, decimal.Zero, t0).Reason)
	})
}

func TestInstrumentOverrides(t *testing.T) {
	limits := DefaultLimits()
	limits.Instruments = map[string]InstrumentLimits{
		"big": {MaxPosition: d("1000")},
	}
	got := limits.For("big")
	assert.Equal(t, "1000", got.MaxPosition.String())
	assert.Equal(t, limits.Default.MaxTradeSize.String(), got.MaxTradeSize.String())
	assert.Equal(t, limits.Default, limits.For("other"))

	e := newTestEngine(limits, BreakerConfig{}, fakePositions{"big": d("150")})
	limits.Instruments["big"] = InstrumentLimits{MaxPosition: d("1")}
	assert.True(t, e.Admit("big", enum.SideBuy, d("10"), t0).Allowed)
}

func TestDailyTradeLimitReached(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDailyTrades = 100
	e := newTestEngine(limits, BreakerConfig{}, fakePositions{})
	for range 100 {
		e.RecordFill(t0)
	}
	got := e.Admit("a", enum.SideBuy, d("10"), t0)
	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonDailyTradeLimit, got.Reason)

	got = e.Admit("a", enum.SideBuy, d("10"), t0.Add(24*time.Hour))
	assert.True(t, got.Allowed, "counter resets on the next UTC day")
}

func TestConsecutiveLossesHaltAndCooldown(t *testing.T) {
	cfg := BreakerConfig{ConsecutiveLosses: 5, Cooldown: 2 * time.Hour}
	e := newTestEngine(DefaultLimits(), cfg, fakePositions{})

	var transitions []BreakerState
	e.OnTransition(func(s BreakerState) { transitions = append(transitions, s) })

	equity := d("1000")
	for i := range 5 {
		equity = equity.Sub(d("1"))
		state := e.RecordTrade(d("-1"), equity, t0.Add(time.Duration(i)*time.Minute))
		if i < 4 {
			require.Falsef(t, state.Halted(), "halted after %d losses", i+1)
		}
	}

	halted := e.Breaker(t0.Add(5 * time.Minute))
	require.True(t, halted.Halted())
	assert.Equal(t, "5 consecutive losses", halted.HaltReason)
	require.Len(t, transitions, 1)

	assert.Equal(t, ReasonBreakerHalted, e.Admit("a", enum.SideBuy, d("1"), t0.Add(time.Hour)).Reason)
	assert.Equal(t, ReasonBreakerHalted, e.Admit("a", enum.SideSell, d("1"), t0.Add(2*time.Hour)).Reason)

	got := e.Admit("a", enum.SideBuy, d("1"), t0.Add(4*time.Minute+2*time.Hour))
	assert.True(t, got.Allowed)
	require.Len(t, transitions, 2)
	assert.Equal(t, StateNormal, transitions[1].State)
	assert.Zero(t, e.Daily().ConsecutiveLosses)
}

func TestWinResetsLossStreak(t *testing.T) {
	e := newTestEngine(DefaultLimits(), BreakerConfig{ConsecutiveLosses: 3}, fakePositions{})
	e.RecordTrade(d("-1"), d("999"), t0)
	e.RecordTrade(d("-1"), d("998"), t0)
	e.RecordTrade(d("2"), d("1000"), t0)
	e.RecordTrade(d("-1"), d("999"), t0)
	assert.False(t, e.Breaker(t0).Halted())
	assert.Equal(t, 1, e.Daily().ConsecutiveLosses)
}

func TestApprovalRequired(t *testing.T) {
	cfg := BreakerConfig{ConsecutiveLosses: 1, Cooldown: time.Hour, RequireApproval: true}
	e := newTestEngine(DefaultLimits(), cfg, fakePositions{})
	assert.False(t, e.Approve(), "nothing to approve while normal")

	e.RecordTrade(d("-5"), d("995"), t0)
	require.True(t, e.Breaker(t0).Halted())

	later := t0.Add(3 * time.Hour)
	assert.Equal(t, ReasonBreakerHalted, e.Admit("a", enum.SideBuy, d("1"), later).Reason)

	require.True(t, e.Approve())
	assert.True(t, e.Admit("a", enum.SideBuy, d("1"), later).Allowed)
}

func TestApprovalBeforeCooldownWaits(t *testing.T) {
	cfg := BreakerConfig{ConsecutiveLosses: 1, Cooldown: time.Hour, RequireApproval: true}
	e := newTestEngine(DefaultLimits(), cfg, fakePositions{})
	e.RecordTrade(d("-5"), d("995"), t0)
	require.True(t, e.Approve())

	assert.True(t, e.Breaker(t0.Add(30*time.Minute)).Halted())
	assert.False(t, e.Breaker(t0.Add(time.Hour)).Halted())
}

func TestDailyLossPercentTrigger(t *testing.T) {
	e := newTestEngine(DefaultLimits(), BreakerConfig{DailyLossPercent: d("10")}, fakePositions{})
	e.RecordTrade(d("-60"), d("940"), t0)
	assert.False(t, e.Breaker(t0).Halted())

	state := e.RecordTrade(d("-40"), d("900"), t0)
	require.True(t, state.Halted())
	assert.Contains(t, state.HaltReason, "daily loss 10.00%")
}

func TestDrawdownTrigger(t *testing.T) {
	e := newTestEngine(DefaultLimits(), BreakerConfig{DrawdownPercent: d("20")}, fakePositions{})
	e.RecordTrade(d("250"), d("1250"), t0)
	e.RecordTrade(d("-200"), d("1050"), t0)
	assert.False(t, e.Breaker(t0).Halted())

	state := e.RecordTrade(d("-50"), d("1000"), t0.Add(24*time.Hour))
	require.True(t, state.Halted())
	assert.Contains(t, state.HaltReason, "drawdown 20.00%")
}

func TestSeedFromHistory(t *testing.T) {
	e := newTestEngine(DefaultLimits(), BreakerConfig{ConsecutiveLosses: 3}, fakePositions{})
	recent := []model.Trade{
		{PnL: d("-1")},
		{PnL: d("-2")},
		{PnL: d("3")},
		{PnL: d("-4")},
	}
	e.Seed(d("-3"), 7, recent, t0)

	daily := e.Daily()
	assert.Equal(t, 2, daily.ConsecutiveLosses)
	assert.Equal(t, 7, daily.Trades)
	assert.Equal(t, "-3", daily.RealizedPnL.String())

	assert.True(t, e.RecordTrade(d("-1"), d("990"), t0).Halted())
}

func TestLimitsValidate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())
	require.NoError(t, DefaultBreakerConfig().Validate())

	bad := DefaultLimits()
	bad.MaxDailyTrades = -1
	assert.Error(t, bad.Validate())

	badCfg := DefaultBreakerConfig()
	badCfg.Cooldown = -time.Second
	assert.Error(t, badCfg.Validate())
}
