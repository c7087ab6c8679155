package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/backtest"
	"polytrader/internal/ops"
	"polytrader/internal/store/sqlite"
	"polytrader/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	instrument := flag.String("instrument", "", "Instrument to backtest")
	days := flag.Int("days", 0, "Days of history (0=config)")
	capital := flag.String("capital", "", "Initial capital (empty=config)")
	strategyName := flag.String("strategy", "", "Strategy name (empty=config)")
	source := flag.String("source", "", "Tick source: sqlite or wal (empty=config)")
	output := flag.String("output", "", "Write the full result as JSON to this path")
	flag.Parse()

	loaded := ops.Default()
	if *configPath != "" {
		var err error
		if loaded, err = ops.Load(*configPath); err != nil {
			fatal("load config, err: %+v", err)
		}
	}
	if *days <= 0 {
		*days = loaded.BacktestRun.Days
	}
	if *source == "" {
		*source = loaded.BacktestRun.Source
	}
	initial := loaded.Backtest.InitialCapital
	if *capital != "" {
		v, err := decimal.NewFromString(*capital)
		if err != nil {
			fatal("parse capital %q, err: %+v", *capital, err)
		}
		initial = v
	}
	if *strategyName != "" {
		loaded.Strategy.Name = *strategyName
	}

	strat, err := strategy.DefaultRegistry().New(loaded.Strategy.Name, loaded.Strategy.Params)
	if err != nil {
		fatal("build strategy, err: %+v", err)
	}

	var ticks backtest.Source
	switch *source {
	case "wal":
		ticks = backtest.WALSource{Dir: loaded.Recorder.Dir}
	default:
		history, err := sqlite.Open(loaded.Storage.SQLite.Path)
		if err != nil {
			fatal("open price history, err: %+v", err)
		}
		defer history.Close()
		ticks = history
	}

	svc, err := backtest.NewService(ticks, loaded.Backtest, strat)
	if err != nil {
		fatal("init backtest, err: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := svc.Run(ctx, *instrument, *days, initial)
	if err != nil && !res.Cancelled {
		fatal("backtest %s, err: %+v", *instrument, err)
	}
	if res.Cancelled {
		logs.Warnf("backtest cancelled after %d ticks", res.Ticks)
	}

	if err := backtest.WriteSummary(os.Stdout, res); err != nil {
		fatal("write summary, err: %+v", err)
	}
	if *output != "" {
		if err := backtest.WriteFile(*output, res); err != nil {
			fatal("write result, err: %+v", err)
		}
		logs.Infof("result written to %s", *output)
	}
}

func fatal(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}
