package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/bus"
	"polytrader/internal/mdg"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/recorder"
	"polytrader/internal/schema"
)

func main() {
	walDir := flag.String("wal-dir", "data/wal", "WAL directory for generated ticks")
	instruments := flag.String("instruments", "token-a", "Comma separated instrument ids")
	ticks := flag.Int("ticks", 1000, "Number of ticks to generate")
	interval := flag.Duration("interval", time.Minute, "Event time between ticks")
	start := flag.String("start", "", "Event time of the first tick, RFC3339 (default: now minus the series span)")
	seed := flag.Int64("seed", 1, "RNG seed")
	startPrice := flag.String("start-price", "0.5", "Starting price")
	maxStep := flag.String("max-step", "0.01", "Max price move per tick")
	flag.Parse()

	if *ticks <= 0 {
		fatal("ticks must be > 0")
	}

	cfg := mdg.DefaultConfig(strings.Split(*instruments, ",")...)
	cfg.Seed = *seed
	cfg.StartPrice = mustDecimal(*startPrice)
	cfg.MaxStep = mustDecimal(*maxStep)
	generator, err := mdg.NewGenerator(cfg)
	if err != nil {
		fatal("generator init failed, err: %+v", err)
	}

	first := time.Now().UTC().Add(-time.Duration(*ticks) * *interval)
	if *start != "" {
		if first, err = time.Parse(time.RFC3339, *start); err != nil {
			fatal("parse start, err: %+v", err)
		}
	}

	ctx := context.Background()
	walCfg := recorder.DefaultConfig(*walDir)
	walCfg.QueueSize = max(walCfg.QueueSize, *ticks+1)
	writer, err := recorder.NewWriter(walCfg)
	if err != nil {
		fatal("wal init failed, err: %+v", err)
	}
	if err := writer.Start(ctx); err != nil {
		fatal("wal start failed, err: %+v", err)
	}
	log := recorder.NewLog(writer, schema.SourceReplay, nil)

	queue := bus.NewQueue[model.Tick](1024)
	errCh := make(chan error, 1)
	metrics := obs.NewMetrics()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(t model.Tick) {
			if err := log.AppendTick(t); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		})
	}()

	for _, t := range generator.Series(first, *interval, *ticks) {
		if err := queue.Publish(ctx, t); err != nil {
			fatal("publish failed, err: %+v", err)
		}
		metrics.ObserveTick(0)
	}

	queue.Close()
	wg.Wait()

	var appendErr error
	select {
	case appendErr = <-errCh:
	default:
	}
	if err := writer.Close(); err != nil {
		fatal("wal close failed, err: %+v", err)
	}
	if appendErr != nil {
		fatal("wal append failed, err: %+v", appendErr)
	}
	logs.Infof("generated %d ticks into %s, last seq %d", metrics.Snapshot().Ticks, *walDir, log.Seq())
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		fatal("parse decimal %q, err: %+v", s, err)
	}
	return d
}

func fatal(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}
