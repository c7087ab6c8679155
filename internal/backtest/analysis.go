package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

// DefaultAnnualization is the number of periods per year used by Sharpe.
const DefaultAnnualization = 252

var hundred = decimal.NewFromInt(100)

// EquityPoint is the account value after one tick.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
}

// Analysis summarizes a run.
type Analysis struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRatePct     decimal.Decimal `json:"win_rate_pct"`
	AvgWin         decimal.Decimal `json:"avg_win"`
	AvgLoss        decimal.Decimal `json:"avg_loss"`
	PayoffRatio    decimal.Decimal `json:"payoff_ratio"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
}

// Analyze computes the performance summary. Only closing trades count as
// trades. annualization <= 0 selects DefaultAnnualization.
func Analyze(initial, final decimal.Decimal, curve []EquityPoint, trades []model.Trade, annualization int) Analysis {
	a := Analysis{
		InitialCapital: initial,
		FinalCapital:   final,
		TotalPnL:       final.Sub(initial),
		TotalTrades:    len(trades),
	}
	if initial.IsPositive() {
		a.TotalReturnPct = a.TotalPnL.Div(initial).Mul(hundred).Round(4)
	}

	sumWin, sumLoss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		switch {
		case t.PnL.IsPositive():
			a.WinningTrades++
			sumWin = sumWin.Add(t.PnL)
		case t.PnL.IsNegative():
			a.LosingTrades++
			sumLoss = sumLoss.Add(t.PnL)
		}
	}
	if a.TotalTrades > 0 {
		a.WinRatePct = decimal.NewFromInt(int64(a.WinningTrades)).Div(decimal.NewFromInt(int64(a.TotalTrades))).Mul(hundred).Round(2)
	}
	if a.WinningTrades > 0 {
		a.AvgWin = sumWin.Div(decimal.NewFromInt(int64(a.WinningTrades))).Round(6)
	}
	if a.LosingTrades > 0 {
		a.AvgLoss = sumLoss.Div(decimal.NewFromInt(int64(a.LosingTrades))).Round(6)
	}
	if !a.AvgLoss.IsZero() {
		a.PayoffRatio = a.AvgWin.Div(a.AvgLoss).Abs().Round(4)
	}

	a.SharpeRatio = Sharpe(curve, annualization)
	a.MaxDrawdownPct = MaxDrawdown(curve)
	return a
}

// Sharpe is mean/stdev of the per-tick returns times the square root of the
// annualization factor, capped by the number of returns. It is 0 when the
// returns have no variance.
func Sharpe(curve []EquityPoint, annualization int) float64 {
	if annualization <= 0 {
		annualization = DefaultAnnualization
	}
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if !prev.IsPositive() {
			continue
		}
		r, _ := curve[i].Equity.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}

	periods := float64(min(len(returns), annualization))
	return math.Round(mean/std*math.Sqrt(periods)*1e4) / 1e4
}

// MaxDrawdown is the largest peak-to-trough decline of the curve, as a
// positive percentage of the running peak.
func MaxDrawdown(curve []EquityPoint) decimal.Decimal {
	maxDD := decimal.Zero
	peak := decimal.Zero
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Equity).Div(peak).Mul(hundred)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD.Round(4)
}
