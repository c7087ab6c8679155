package backtest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// WriteSummary prints a human readable summary of a run.
func WriteSummary(w io.Writer, res Result) error {
	a := res.Analysis
	_, err := fmt.Fprintf(w, `strategy         %s
ticks            %d
initial capital  %s
final capital    %s
total pnl        %s (%s%%)
trades           %d (won %d, lost %d)
win rate         %s%%
avg win          %s
avg loss         %s
payoff ratio     %s
sharpe ratio     %.4f
max drawdown     %s%%
`,
		res.Strategy, res.Ticks,
		a.InitialCapital.StringFixed(2), a.FinalCapital.StringFixed(2),
		a.TotalPnL.StringFixed(2), a.TotalReturnPct.StringFixed(2),
		a.TotalTrades, a.WinningTrades, a.LosingTrades,
		a.WinRatePct.StringFixed(2), a.AvgWin.StringFixed(4), a.AvgLoss.StringFixed(4),
		a.PayoffRatio.StringFixed(4), a.SharpeRatio, a.MaxDrawdownPct.StringFixed(2))
	return err
}

// WriteFile stores the full result as JSON.
func WriteFile(path string, res Result) error {
	b, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
