package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/logs"

	"polytrader/internal/backtest"
	"polytrader/internal/chaos"
	"polytrader/internal/feed"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/ops"
	"polytrader/internal/recorder"
	"polytrader/internal/schema"
	"polytrader/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	inputDir := flag.String("input-dir", "data/wal", "Input WAL directory")
	instrument := flag.String("instrument", "", "Instrument to replay (empty=all)")
	outputDir := flag.String("output-dir", "", "Write the chaotic stream to this WAL directory")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	corruptRate := flag.Float64("corrupt-rate", 0, "Out-of-range price probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max delivery delay")
	flag.Parse()

	loaded := ops.Default()
	if *configPath != "" {
		var err error
		if loaded, err = ops.Load(*configPath); err != nil {
			fatal("load config, err: %+v", err)
		}
	}

	ctx := context.Background()
	ticks, err := recorder.LoadTicks(ctx, *inputDir, *instrument, time.Time{}, time.Time{})
	if err != nil {
		fatal("load ticks, err: %+v", err)
	}

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		CorruptRate:   *corruptRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		fatal("chaos config invalid, err: %+v", err)
	}

	events := make([]chaos.Event, 0, len(ticks))
	for _, t := range ticks {
		events = append(events, engine.Process(t)...)
	}
	events = append(events, engine.Flush()...)

	if *outputDir != "" {
		if err := writeStream(ctx, *outputDir, events); err != nil {
			fatal("write chaotic stream, err: %+v", err)
		}
	}

	metrics := obs.NewMetrics()
	accepted := make([]model.Tick, 0, len(events))
	for _, ev := range events {
		metrics.ObserveFeedDelay(ev.Delay)
		if err := feed.Validate(ev.Tick); err != nil {
			metrics.IncFeedAnomaly()
			continue
		}
		accepted = append(accepted, ev.Tick)
	}

	strat, err := strategy.DefaultRegistry().New(loaded.Strategy.Name, loaded.Strategy.Params)
	if err != nil {
		fatal("build strategy, err: %+v", err)
	}
	res, err := backtest.Run(ctx, loaded.Backtest, accepted, strat)
	if err != nil {
		fatal("run, err: %+v", err)
	}

	snap := metrics.Snapshot()
	fmt.Printf("input ticks      %d\n", len(ticks))
	fmt.Printf("delivered        %d\n", len(events))
	fmt.Printf("rejected         %d\n", snap.FeedAnomalies)
	fmt.Printf("max delay        %s\n", snap.FeedLatency.Max)
	if err := backtest.WriteSummary(os.Stdout, res); err != nil {
		fatal("write summary, err: %+v", err)
	}
}

func writeStream(ctx context.Context, dir string, events []chaos.Event) error {
	cfg := recorder.DefaultConfig(dir)
	cfg.FilePrefix = "chaos"
	cfg.QueueSize = max(cfg.QueueSize, len(events)+1)
	w, err := recorder.NewWriter(cfg)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	log := recorder.NewLog(w, schema.SourceReplay, nil)
	for _, ev := range events {
		if err := log.AppendTick(ev.Tick); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func fatal(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}
