package ops

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"gopkg.in/yaml.v3"

	"polytrader/internal/alert"
	"polytrader/internal/backtest"
	"polytrader/internal/model/enum"
	"polytrader/internal/og"
	"polytrader/internal/risk"
	"polytrader/internal/strategy"
)

const (
	envEnableTrading = "ENABLE_TRADING"
	envPGPassword    = "POLYTRADER_PG_PASSWORD"
	envRedisPassword = "POLYTRADER_REDIS_PASSWORD"
	envDiscordURL    = "POLYTRADER_DISCORD_WEBHOOK"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Mode        string             `yaml:"mode"`
	InitialCash *decimal.Decimal   `yaml:"initial_cash"`
	Instruments []string           `yaml:"instruments"`
	HistorySize int                `yaml:"history_size"`
	Risk        RiskConfig         `yaml:"risk"`
	Breaker     BreakerConfig      `yaml:"breaker"`
	Executor    ExecutorConfig     `yaml:"executor"`
	Slippage    SlippageConfig     `yaml:"slippage"`
	Strategy    StrategyConfig     `yaml:"strategy"`
	Backtest    BacktestConfig     `yaml:"backtest"`
	Feed        FeedConfig         `yaml:"feed"`
	Recorder    RecorderConfig     `yaml:"recorder"`
	Storage     StorageConfig      `yaml:"storage"`
	Alerts      AlertsConfig       `yaml:"alerts"`
	Admin       AdminConfig        `yaml:"admin"`
	Profiling   ProfilingConfig    `yaml:"profiling"`
	Features    FeatureFlagsConfig `yaml:"features"`
}

// RiskConfig overrides risk.DefaultLimits field by field.
type RiskConfig struct {
	StopLossPercent    *decimal.Decimal                `yaml:"stop_loss_percent"`
	TakeProfitPercent  *decimal.Decimal                `yaml:"take_profit_percent"`
	MaxPosition        *decimal.Decimal                `yaml:"max_position"`
	MaxTradeSize       *decimal.Decimal                `yaml:"max_trade_size"`
	MaxDailyLoss       *decimal.Decimal                `yaml:"max_daily_loss"`
	MaxDailyTrades     *int                            `yaml:"max_daily_trades"`
	MaxOrdersPerWindow *int                            `yaml:"max_orders_per_window"`
	OrderWindow        time.Duration                   `yaml:"order_window"`
	Instruments        map[string]InstrumentRiskConfig `yaml:"instruments"`
}

type InstrumentRiskConfig struct {
	MaxPosition  decimal.Decimal `yaml:"max_position"`
	MaxTradeSize decimal.Decimal `yaml:"max_trade_size"`
}

// BreakerConfig overrides risk.DefaultBreakerConfig field by field.
type BreakerConfig struct {
	DailyLossPercent  *decimal.Decimal `yaml:"daily_loss_percent"`
	ConsecutiveLosses *int             `yaml:"consecutive_losses"`
	DrawdownPercent   *decimal.Decimal `yaml:"drawdown_percent"`
	Cooldown          time.Duration    `yaml:"cooldown"`
	RequireApproval   *bool            `yaml:"require_approval"`
}

type ExecutorConfig struct {
	OrderStyle   string        `yaml:"order_style"`
	MaxRetries   *int          `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	GatewayURL   string        `yaml:"gateway_url"`
}

type SlippageConfig struct {
	UseBookPrice bool            `yaml:"use_book_price"`
	Bps          decimal.Decimal `yaml:"bps"`
}

type StrategyConfig struct {
	Name   string          `yaml:"name"`
	Params strategy.Params `yaml:"params"`
}

type BacktestConfig struct {
	Days           int              `yaml:"days"`
	InitialCapital *decimal.Decimal `yaml:"initial_capital"`
	Annualization  int              `yaml:"annualization"`
	Source         string           `yaml:"source"`
}

type FeedConfig struct {
	// Source is polymarket or synthetic.
	Source   string        `yaml:"source"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
}

type RecorderConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentMaxBytes int64         `yaml:"segment_max_bytes"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	SnapshotPath    string        `yaml:"snapshot_path"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
}

type PostgresConfig struct {
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	SSLMode  string            `yaml:"ssl_mode"`
	Params   map[string]string `yaml:"params"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TickTTL  time.Duration `yaml:"tick_ttl"`
}

type AlertsConfig struct {
	DiscordWebhook string           `yaml:"discord_webhook"`
	Rules          []alert.RuleSpec `yaml:"rules"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type ProfilingConfig struct {
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableFeed      *bool `yaml:"enable_feed"`
	EnableRecorder  *bool `yaml:"enable_recorder"`
	EnableAlerts    *bool `yaml:"enable_alerts"`
	EnablePostgres  *bool `yaml:"enable_postgres"`
	EnableHistory   *bool `yaml:"enable_history"`
	EnableCache     *bool `yaml:"enable_cache"`
	EnableAdmin     *bool `yaml:"enable_admin"`
	EnableProfiling *bool `yaml:"enable_profiling"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableFeed      bool
	EnableRecorder  bool
	EnableAlerts    bool
	EnablePostgres  bool
	EnableHistory   bool
	EnableCache     bool
	EnableAdmin     bool
	EnableProfiling bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode        og.Mode
	InitialCash decimal.Decimal
	Instruments []string
	HistorySize int
	Limits      risk.Limits
	Breaker     risk.BreakerConfig
	Executor    og.Config
	GatewayURL  string
	OrderStyle  enum.OrderStyle
	Slippage    og.Slippage
	Strategy    StrategyConfig
	Backtest    backtest.Config
	BacktestRun BacktestConfig
	Feed        FeedConfig
	Recorder    RecorderConfig
	Storage     StorageConfig
	AlertRules  []alert.Rule
	Discord     string
	Admin       AdminConfig
	Profiling   ProfilingConfig
	Features    FeatureFlags
}

// Load reads a YAML config file and resolves it against the defaults.
// Secrets and the live trading gate come from the environment.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data, os.Getenv)
}

// Parse resolves raw YAML. getenv supplies environment overrides.
func Parse(data []byte, getenv func(string) string) (Loaded, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w", err)
	}
	return Resolve(cfg, getenv)
}

// Default returns the configuration used when no file is given.
func Default() Loaded {
	loaded, err := Resolve(FileConfig{}, func(string) string { return "" })
	if err != nil {
		panic(err)
	}
	return loaded
}

// Resolve validates a file config and fills in defaults.
func Resolve(cfg FileConfig, getenv func(string) string) (Loaded, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	mode, err := resolveMode(cfg.Mode, getenv)
	if err != nil {
		return Loaded{}, err
	}

	cash := decimal.NewFromInt(1000)
	if cfg.InitialCash != nil {
		cash = *cfg.InitialCash
	}
	if !cash.IsPositive() {
		return Loaded{}, fmt.Errorf("initial_cash must be > 0")
	}

	limits := resolveLimits(cfg.Risk)
	if err := limits.Validate(); err != nil {
		return Loaded{}, err
	}
	breaker := resolveBreaker(cfg.Breaker)
	if err := breaker.Validate(); err != nil {
		return Loaded{}, err
	}

	style := enum.OrderStyleLimit
	if cfg.Executor.OrderStyle != "" {
		if err := style.UnmarshalText([]byte(cfg.Executor.OrderStyle)); err != nil {
			return Loaded{}, err
		}
	}
	exec := og.DefaultConfig()
	exec.Mode = mode
	exec.MaxOrdersPerWindow = limits.MaxOrdersPerWindow
	exec.Window = limits.OrderWindow
	if cfg.Executor.MaxRetries != nil {
		if *cfg.Executor.MaxRetries < 0 {
			return Loaded{}, fmt.Errorf("executor max_retries must be >= 0")
		}
		exec.MaxRetries = *cfg.Executor.MaxRetries
	}
	if cfg.Executor.RetryBackoff > 0 {
		exec.RetryBackoff = cfg.Executor.RetryBackoff
	}

	if strings.EqualFold(cfg.Mode, "live") && cfg.Executor.GatewayURL == "" {
		return Loaded{}, fmt.Errorf("live mode needs executor gateway_url")
	}

	if cfg.Slippage.Bps.IsNegative() {
		return Loaded{}, fmt.Errorf("slippage bps must be >= 0")
	}

	strat := cfg.Strategy
	if strat.Name == "" {
		strat.Name = "threshold"
	}
	if _, err := strategy.DefaultRegistry().New(strat.Name, strat.Params); err != nil {
		return Loaded{}, fmt.Errorf("strategy %s: %w", strat.Name, err)
	}

	bt := backtest.DefaultConfig()
	bt.Limits = limits
	bt.Breaker = breaker
	bt.HistorySize = cfg.HistorySize
	bt.Slippage = og.Slippage{UseBookPrice: cfg.Slippage.UseBookPrice, Bps: cfg.Slippage.Bps}
	if cfg.Backtest.InitialCapital != nil {
		bt.InitialCapital = *cfg.Backtest.InitialCapital
	}
	if cfg.Backtest.Annualization > 0 {
		bt.Annualization = cfg.Backtest.Annualization
	}
	run := cfg.Backtest
	if run.Days <= 0 {
		run.Days = 7
	}
	switch run.Source {
	case "":
		run.Source = "sqlite"
	case "sqlite", "wal":
	default:
		return Loaded{}, fmt.Errorf("unknown backtest source %q", run.Source)
	}

	rules, err := alert.BuildRules(cfg.Alerts.Rules)
	if err != nil {
		return Loaded{}, err
	}

	fd := cfg.Feed
	switch fd.Source {
	case "":
		fd.Source = "polymarket"
	case "polymarket", "synthetic":
	default:
		return Loaded{}, fmt.Errorf("unknown feed source %q", fd.Source)
	}
	if fd.Interval <= 0 {
		fd.Interval = time.Second
	}

	rec := cfg.Recorder
	if rec.Dir == "" {
		rec.Dir = "data/wal"
	}

	storage := cfg.Storage
	if v := getenv(envPGPassword); v != "" {
		storage.Postgres.Password = v
	}
	if v := getenv(envRedisPassword); v != "" {
		storage.Redis.Password = v
	}
	if storage.SQLite.Path == "" {
		storage.SQLite.Path = "data/history.db"
	}
	if storage.Redis.Addr == "" {
		storage.Redis.Addr = "localhost:6379"
	}

	discord := cfg.Alerts.DiscordWebhook
	if v := getenv(envDiscordURL); v != "" {
		discord = v
	}

	admin := cfg.Admin
	if admin.Addr == "" {
		admin.Addr = ":8080"
	}
	prof := cfg.Profiling
	if prof.AppName == "" {
		prof.AppName = "polytrader"
	}

	return Loaded{
		Mode:        mode,
		InitialCash: cash,
		Instruments: cfg.Instruments,
		HistorySize: cfg.HistorySize,
		Limits:      limits,
		Breaker:     breaker,
		Executor:    exec,
		GatewayURL:  cfg.Executor.GatewayURL,
		OrderStyle:  style,
		Slippage:    bt.Slippage,
		Strategy:    strat,
		Backtest:    bt,
		BacktestRun: run,
		Feed:        fd,
		Recorder:    rec,
		Storage:     storage,
		AlertRules:  rules,
		Discord:     discord,
		Admin:       admin,
		Profiling:   prof,
		Features:    resolveFeatures(cfg.Features),
	}, nil
}

// resolveMode grants live mode only when ENABLE_TRADING is set to a true value.
func resolveMode(mode string, getenv func(string) string) (og.Mode, error) {
	switch strings.ToLower(mode) {
	case "", "dry-run", "dry_run", "simulated":
		return og.ModeSimulated, nil
	case "live":
		enabled, _ := strconv.ParseBool(getenv(envEnableTrading))
		if !enabled {
			logs.Warnf("live mode requested without %s=true, running dry-run", envEnableTrading)
			return og.ModeSimulated, nil
		}
		return og.ModeLive, nil
	}
	return og.ModeSimulated, fmt.Errorf("unknown mode %q", mode)
}

func resolveLimits(cfg RiskConfig) risk.Limits {
	l := risk.DefaultLimits()
	setDecimal(&l.StopLossPercent, cfg.StopLossPercent)
	setDecimal(&l.TakeProfitPercent, cfg.TakeProfitPercent)
	setDecimal(&l.Default.MaxPosition, cfg.MaxPosition)
	setDecimal(&l.Default.MaxTradeSize, cfg.MaxTradeSize)
	setDecimal(&l.MaxDailyLoss, cfg.MaxDailyLoss)
	if cfg.MaxDailyTrades != nil {
		l.MaxDailyTrades = *cfg.MaxDailyTrades
	}
	if cfg.MaxOrdersPerWindow != nil {
		l.MaxOrdersPerWindow = *cfg.MaxOrdersPerWindow
	}
	if cfg.OrderWindow != 0 {
		l.OrderWindow = cfg.OrderWindow
	}
	if len(cfg.Instruments) > 0 {
		l.Instruments = make(map[string]risk.InstrumentLimits, len(cfg.Instruments))
		for id, il := range cfg.Instruments {
			l.Instruments[id] = risk.InstrumentLimits{MaxPosition: il.MaxPosition, MaxTradeSize: il.MaxTradeSize}
		}
	}
	return l
}

func resolveBreaker(cfg BreakerConfig) risk.BreakerConfig {
	b := risk.DefaultBreakerConfig()
	setDecimal(&b.DailyLossPercent, cfg.DailyLossPercent)
	setDecimal(&b.DrawdownPercent, cfg.DrawdownPercent)
	if cfg.ConsecutiveLosses != nil {
		b.ConsecutiveLosses = *cfg.ConsecutiveLosses
	}
	if cfg.Cooldown != 0 {
		b.Cooldown = cfg.Cooldown
	}
	if cfg.RequireApproval != nil {
		b.RequireApproval = *cfg.RequireApproval
	}
	return b
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableFeed:     true,
		EnableRecorder: true,
		EnableAlerts:   true,
		EnableHistory:  true,
		EnableAdmin:    true,
	}
	for _, f := range []struct {
		dst *bool
		src *bool
	}{
		{&flags.EnableFeed, cfg.EnableFeed},
		{&flags.EnableRecorder, cfg.EnableRecorder},
		{&flags.EnableAlerts, cfg.EnableAlerts},
		{&flags.EnablePostgres, cfg.EnablePostgres},
		{&flags.EnableHistory, cfg.EnableHistory},
		{&flags.EnableCache, cfg.EnableCache},
		{&flags.EnableAdmin, cfg.EnableAdmin},
		{&flags.EnableProfiling, cfg.EnableProfiling},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return flags
}
