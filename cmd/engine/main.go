package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"polytrader/internal/admin"
	"polytrader/internal/alert"
	"polytrader/internal/engine"
	"polytrader/internal/feed"
	"polytrader/internal/hub"
	"polytrader/internal/mdg"
	"polytrader/internal/obs"
	"polytrader/internal/og"
	"polytrader/internal/ops"
	"polytrader/internal/recorder"
	"polytrader/internal/risk"
	"polytrader/internal/schema"
	"polytrader/internal/state"
	"polytrader/internal/store"
	"polytrader/internal/store/cache"
	"polytrader/internal/store/pg"
	"polytrader/internal/store/sqlite"
	"polytrader/internal/strategy"
	"polytrader/pkg/exception"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	recoverEnabled := flag.Bool("recover", false, "Recover the ledger from snapshot + WAL")
	snapshotInterval := flag.Duration("snapshot-interval", time.Minute, "Ledger snapshot interval (0=only on shutdown)")
	flag.Parse()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config, err: %+v", err)
	}
	rc := newRuntimeConfig(loaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	if loaded.Features.EnableProfiling {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			fatal("pyroscope start failed, err: %+v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()
	repo, closeRepo := openRepository(loaded)
	defer closeRepo()

	snapshotPath := resolveSnapshotPath(loaded.Recorder)
	ledger, seq := openLedger(ctx, loaded, snapshotPath, *recoverEnabled)

	var redisCache *cache.Cache
	if loaded.Features.EnableCache {
		redisCache = cache.New(cache.Option{
			Addr:     loaded.Storage.Redis.Addr,
			Password: loaded.Storage.Redis.Password,
			DB:       loaded.Storage.Redis.DB,
			Prefix:   loaded.Storage.Redis.Prefix,
			TickTTL:  loaded.Storage.Redis.TickTTL,
		})
		defer redisCache.Close()
	}

	riskEngine := risk.NewEngine(loaded.Limits, loaded.Breaker, ledger, ledger.Equity())
	restoreBreaker(ctx, riskEngine, redisCache)
	riskEngine.OnTransition(func(s risk.BreakerState) {
		if s.Halted() {
			logs.Warnf("circuit breaker halted: %s", s.HaltReason)
		} else {
			logs.Infof("circuit breaker back to %s", s.State)
		}
		if redisCache == nil {
			return
		}
		saveCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if err := redisCache.SaveBreaker(saveCtx, s); err != nil {
			metrics.IncPersistenceFailure()
			logs.Errorf("save breaker state, err: %+v", err)
		}
	})

	var venue og.Venue
	if loaded.Mode == og.ModeLive {
		venue = og.NewGatewayVenue(loaded.GatewayURL)
	}
	executor, err := og.NewExecutor(loaded.Executor, venue, nil)
	if err != nil {
		fatal("executor init failed, err: %+v", err)
	}

	strat, err := strategy.DefaultRegistry().New(loaded.Strategy.Name, loaded.Strategy.Params)
	if err != nil {
		fatal("strategy init failed, err: %+v", err)
	}

	var (
		writer  *recorder.Writer
		walLog  *recorder.Log
		listens engine.Listeners
	)
	if loaded.Features.EnableRecorder {
		cfg := recorder.DefaultConfig(loaded.Recorder.Dir)
		if loaded.Recorder.SegmentMaxBytes > 0 {
			cfg.SegmentMaxBytes = loaded.Recorder.SegmentMaxBytes
		}
		if loaded.Recorder.SegmentDuration > 0 {
			cfg.SegmentMaxDuration = loaded.Recorder.SegmentDuration
		}
		if writer, err = recorder.NewWriter(cfg); err != nil {
			fatal("wal init failed, err: %+v", err)
		}
		if err := writer.Start(ctx); err != nil {
			fatal("wal start failed, err: %+v", err)
		}
		walLog = recorder.NewLog(writer, schema.SourceFeed, seq)
		listens = append(listens, walLog)
	}

	eng, err := engine.New(engine.Config{
		HistorySize: loaded.HistorySize,
		OrderStyle:  loaded.OrderStyle,
		Slippage:    loaded.Slippage,
	}, engine.Deps{
		Risk:       riskEngine,
		Ledger:     ledger,
		Executor:   executor,
		Strategy:   strat,
		Repository: repo,
		Metrics:    metrics,
		Listener:   listens,
	})
	if err != nil {
		fatal("engine init failed, err: %+v", err)
	}
	if err := eng.Restore(ctx, time.Now().UTC(), max(loaded.Breaker.ConsecutiveLosses, 1)); err != nil {
		metrics.IncPersistenceFailure()
		logs.Errorf("restore daily risk state, err: %+v", err)
	}
	logs.Infof("engine ready: mode %s, strategy %s, cash %s", executor.Mode(), strat.Name(), ledger.Cash())

	h, err := hub.New(hub.Config{}, eng, metrics)
	if err != nil {
		fatal("hub init failed, err: %+v", err)
	}

	var alerts *alert.Engine
	if loaded.Features.EnableAlerts {
		notifiers := []alert.Notifier{alert.LogNotifier{}}
		if loaded.Discord != "" {
			notifiers = append(notifiers, alert.NewDiscordNotifier(loaded.Discord))
		}
		alerts = alert.NewEngine(loaded.AlertRules, loaded.HistorySize, repo, metrics, notifiers...)
		h.AddObserver(alerts)
	}
	if loaded.Features.EnableHistory {
		history, err := sqlite.Open(loaded.Storage.SQLite.Path)
		if err != nil {
			fatal("open price history, err: %+v", err)
		}
		defer history.Close()
		h.AddObserver(history)
	}
	if redisCache != nil {
		h.AddObserver(redisCache)
	}
	if walLog != nil {
		h.AddObserver(walLog)
	}
	h.Start(ctx)

	var (
		wg       sync.WaitGroup
		stopFeed = func() {}
	)
	switch {
	case loaded.Features.EnableFeed && loaded.Feed.Source == "synthetic":
		cfg := mdg.DefaultConfig(loaded.Instruments...)
		if loaded.Feed.Seed != 0 {
			cfg.Seed = loaded.Feed.Seed
		}
		gen, err := mdg.NewGenerator(cfg)
		if err != nil {
			fatal("synthetic feed init failed, err: %+v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gen.Run(ctx, loaded.Feed.Interval, h); err != nil {
				logs.Errorf("synthetic feed stopped, err: %+v", err)
			}
		}()
	case loaded.Features.EnableFeed:
		pm := feed.NewPolymarket(ctx, loaded.Feed.URL, metrics)
		if err := pm.Start(ctx); err != nil {
			fatal("feed start failed, err: %+v", err)
		}
		unsubscribe := pm.Observe(ctx, h)
		stopFeed = func() {
			unsubscribe()
			pm.Close()
		}
		if len(loaded.Instruments) == 0 {
			logs.Warnf("feed enabled without instruments")
		} else if err := pm.Subscribe(ctx, loaded.Instruments); err != nil {
			fatal("feed subscribe failed, err: %+v", err)
		}
	}

	if loaded.Features.EnableAdmin {
		srv := admin.New(eng, repo, metrics)
		if loaded.Mode == og.ModeLive {
			srv.WithFills(h)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx, loaded.Admin.Addr); err != nil {
				logs.Errorf("admin api stopped, err: %+v", err)
			}
		}()
	}

	if *configPath != "" && *configReload > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchConfig(ctx, *configPath, *configReload, func(next ops.Loaded) {
				applyConfig(rc.Load(), next, eng, alerts)
				rc.Update(next)
			})
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		housekeeping(ctx, *snapshotInterval, executor, ledger, walLog, snapshotPath)
	}()

	<-ctx.Done()
	stopFeed()
	h.Close()
	wg.Wait()

	if writer != nil {
		if err := writer.Close(); err != nil {
			logs.Errorf("wal close failed, err: %+v", err)
		}
	}
	writeSnapshot(ledger, walLog, snapshotPath)

	snap := metrics.Snapshot()
	logs.Infof("stopped: ticks=%d trades=%d anomalies=%d rejections=%v persistence_failures=%d",
		snap.Ticks, snap.Trades, snap.FeedAnomalies, snap.RiskRejections, snap.PersistenceFailures)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Default(), nil
	}
	return ops.Load(path)
}

func openRepository(loaded ops.Loaded) (store.Repository, func()) {
	if !loaded.Features.EnablePostgres {
		return store.NewMemory(), func() {}
	}
	p := loaded.Storage.Postgres
	db, err := pg.Open(pg.Option{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		Database: p.Database,
		SSLMode:  p.SSLMode,
		Params:   p.Params,
	})
	if err != nil {
		fatal("postgres connect failed, err: %+v", err)
	}
	repo, err := pg.New(db)
	if err != nil {
		fatal("postgres migrate failed, err: %+v", err)
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			logs.Errorf("close postgres, err: %+v", err)
		}
	}
}

func resolveSnapshotPath(cfg ops.RecorderConfig) string {
	if cfg.SnapshotPath != "" {
		return cfg.SnapshotPath
	}
	return filepath.Join(cfg.Dir, "positions.json")
}

func openLedger(ctx context.Context, loaded ops.Loaded, snapshotPath string, recoverLedger bool) (*state.Ledger, *obs.Sequencer) {
	if !recoverLedger {
		return state.NewLedger(loaded.InitialCash), obs.NewSequencer(0)
	}
	path := snapshotPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	res, err := state.RecoverLedger(ctx, state.RecoverConfig{
		WALDir:       loaded.Recorder.Dir,
		SnapshotPath: path,
		InitialCash:  loaded.InitialCash,
	})
	if err != nil {
		fatal("recover ledger, err: %+v", err)
	}
	logs.Infof("recovered ledger: positions=%d applied=%d last_seq=%d", res.Ledger.Count(), res.Applied, res.LastSeq)
	return res.Ledger, obs.NewSequencer(res.LastSeq)
}

func restoreBreaker(ctx context.Context, e *risk.Engine, c *cache.Cache) {
	if c == nil {
		return
	}
	s, err := c.LoadBreaker(ctx)
	switch {
	case errors.Is(err, exception.ErrStorageNotFound):
		return
	case err != nil:
		logs.Warnf("load breaker state, err: %+v", err)
		return
	}
	e.RestoreBreaker(s)
	if s.Halted() {
		logs.Warnf("restored halted breaker: %s", s.HaltReason)
	}
}

// applyConfig hot-swaps what can change at runtime. Limits, mode and storage
// need a restart.
func applyConfig(prev, next ops.Loaded, eng *engine.Engine, alerts *alert.Engine) {
	if next.Strategy.Name != prev.Strategy.Name || !sameParams(prev.Strategy.Params, next.Strategy.Params) {
		strat, err := strategy.DefaultRegistry().New(next.Strategy.Name, next.Strategy.Params)
		if err != nil {
			logs.Errorf("reload strategy, err: %+v", err)
		} else {
			eng.SetStrategy(strat)
		}
	}
	if alerts != nil {
		alerts.SetRules(next.AlertRules)
	}
	if next.Mode != prev.Mode || next.Features != prev.Features {
		logs.Warnf("mode and feature changes apply after restart")
	}
}

func sameParams(a, b strategy.Params) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Errorf("config reload failed, err: %+v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}

func housekeeping(ctx context.Context, interval time.Duration, executor *og.Executor, ledger *state.Ledger, walLog *recorder.Log, snapshotPath string) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := executor.Prune(now.Add(-24 * time.Hour)); n > 0 {
				logs.Debugf("pruned %d terminal orders", n)
			}
			writeSnapshot(ledger, walLog, snapshotPath)
		}
	}
}

func writeSnapshot(ledger *state.Ledger, walLog *recorder.Log, path string) {
	if walLog == nil {
		return
	}
	snap := ledger.SnapshotWithMeta(walLog.Seq(), 0)
	if err := state.WriteSnapshot(path, snap); err != nil {
		logs.Errorf("write snapshot %s, err: %+v", path, err)
	}
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...any)  { logs.Debugf(format, args...) }
func (profilerLogger) Debugf(format string, args ...any) { logs.Debugf(format, args...) }
func (profilerLogger) Errorf(format string, args ...any) { logs.Errorf(format, args...) }

func fatal(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}
