package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func input(price string, pos model.Position) Input {
	tick := model.Tick{
		InstrumentID: "token-a",
		Price:        d(price),
		Timestamp:    time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	return Input{
		Price:    tick.Price,
		Position: pos,
		Market:   Market{Tick: tick, History: []model.Tick{tick}, Cash: d("1000")},
	}
}

func TestThresholdDecide(t *testing.T) {
	s, err := NewThreshold(ThresholdConfig{
		BuyThreshold:  d("0.25"),
		SellThreshold: d("0.70"),
		OrderSize:     d("10"),
		MaxSpread:     d("0.05"),
	})
	require.NoError(t, err)

	held := model.Position{InstrumentID: "token-a", Size: d("10"), AveragePrice: d("0.2")}

	testCases := []struct {
		desc   string
		in     Input
		action enum.Action
		amount string
	}{
		{desc: "buy when flat and cheap", in: input("0.20", model.Position{}), action: enum.ActionBuy, amount: "10"},
		{desc: "hold when flat at threshold", in: input("0.25", model.Position{}), action: enum.ActionHold},
		{desc: "no averaging in", in: input("0.20", held), action: enum.ActionHold},
		{desc: "sell all above threshold", in: input("0.71", held), action: enum.ActionSell, amount: "10"},
		{desc: "no sell when flat", in: input("0.90", model.Position{}), action: enum.ActionHold},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			sig, err := s.Decide(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.action, sig.Action)
			if tc.amount != "" {
				assert.Equal(t, tc.amount, sig.Amount.String())
			}
			assert.NotEmpty(t, sig.Reason)
		})
	}

	wide := input("0.20", model.Position{})
	wide.Market.Tick.BestBid = d("0.10")
	wide.Market.Tick.BestAsk = d("0.30")
	sig, err := s.Decide(wide)
	require.NoError(t, err)
	assert.True(t, sig.IsHold(), "spread filter")
}

func TestThresholdConfigValidate(t *testing.T) {
	require.NoError(t, DefaultThresholdConfig().Validate())
	_, err := NewThreshold(ThresholdConfig{})
	assert.Error(t, err)
	_, err = NewThreshold(ThresholdConfig{OrderSize: d("1"), BuyThreshold: d("1.5")})
	assert.Error(t, err)
}

func TestGuardTurnsFaultsIntoHold(t *testing.T) {
	testCases := []struct {
		desc string
		s    Strategy
		is   error
	}{
		{
			desc: "panic",
			s:    Func(func(Input) (Signal, error) { panic("boom") }),
		},
		{
			desc: "error",
			s:    Func(func(Input) (Signal, error) { return Signal{}, errors.New("bad input") }),
		},
		{
			desc: "unknown action",
			s:    Func(func(Input) (Signal, error) { return Signal{Action: enum.Action(9), Amount: d("1")}, nil }),
			is:   exception.ErrStrategyAction,
		},
		{
			desc: "negative amount",
			s:    Func(func(Input) (Signal, error) { return Signal{Action: enum.ActionBuy, Amount: d("-1")}, nil }),
			is:   exception.ErrStrategyAction,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			sig, err := NewGuard("user", tc.s).Decide(input("0.5", model.Position{}))
			var fault *exception.StrategyFault
			require.ErrorAs(t, err, &fault)
			assert.Equal(t, "user", fault.Strategy)
			assert.True(t, sig.IsHold())
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestGuardPassesSignals(t *testing.T) {
	g := NewGuard("echo", Func(func(in Input) (Signal, error) {
		return Signal{Action: enum.ActionBuy, Amount: d("3"), Reason: in.Price.String()}, nil
	}))
	sig, err := g.Decide(input("0.5", model.Position{}))
	require.NoError(t, err)
	assert.Equal(t, enum.ActionBuy, sig.Action)
	assert.Equal(t, "0.5", sig.Reason)

	sig, err = NewGuard("none", nil).Decide(input("0.5", model.Position{}))
	require.NoError(t, err)
	assert.True(t, sig.IsHold())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"hold", "threshold"}, r.Names())

	g, err := r.New("threshold", Params{"buy_threshold": "0.25", "order_size": "5"})
	require.NoError(t, err)
	assert.Equal(t, "threshold", g.Name())
	sig, err := g.Decide(input("0.2", model.Position{}))
	require.NoError(t, err)
	assert.Equal(t, "5", sig.Amount.String())

	_, err = r.New("threshold", Params{"order_size": "abc"})
	assert.Error(t, err)
	_, err = r.New("missing", nil)
	assert.Error(t, err)

	r.Register("always-buy", func(Params) (Strategy, error) {
		return Func(func(Input) (Signal, error) {
			return Signal{Action: enum.ActionBuy, Amount: d("1")}, nil
		}), nil
	})
	_, err = r.New("always-buy", nil)
	assert.NoError(t, err)
}
