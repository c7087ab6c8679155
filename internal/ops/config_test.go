package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model/enum"
	"polytrader/internal/og"
)

const sampleConfig = `
mode: live
initial_cash: 2500
instruments: [token-a, token-b]
risk:
  stop_loss_percent: 8
  max_position: 200
  max_daily_trades: 40
  order_window: 30s
  instruments:
    token-a:
      max_position: 50
breaker:
  consecutive_losses: 3
  cooldown: 30m
  require_approval: true
executor:
  order_style: market
  max_retries: 4
  gateway_url: http://gateway:9000/orders
slippage:
  bps: 25
strategy:
  name: threshold
  params:
    buy_threshold: 0.3
    sell_threshold: 0.7
backtest:
  days: 14
  source: wal
storage:
  postgres:
    host: db
    database: trader
  redis:
    addr: cache:6379
alerts:
  rules:
    - name: cheap
      price_below: "0.2"
      cooldown: 5m
features:
  enable_cache: true
  enable_feed: false
`

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestParseResolvesSections(t *testing.T) {
	loaded, err := Parse([]byte(sampleConfig), envOf(map[string]string{
		envEnableTrading: "true",
		envPGPassword:    "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, og.ModeLive, loaded.Mode)
	assert.Equal(t, og.ModeLive, loaded.Executor.Mode)
	assert.Equal(t, "2500", loaded.InitialCash.String())
	assert.Equal(t, []string{"token-a", "token-b"}, loaded.Instruments)

	assert.Equal(t, "8", loaded.Limits.StopLossPercent.String())
	assert.Equal(t, "200", loaded.Limits.Default.MaxPosition.String())
	assert.Equal(t, 40, loaded.Limits.MaxDailyTrades)
	assert.Equal(t, 30*time.Second, loaded.Executor.Window)
	assert.Equal(t, "50", loaded.Limits.For("token-a").MaxPosition.String())

	assert.Equal(t, 3, loaded.Breaker.ConsecutiveLosses)
	assert.Equal(t, 30*time.Minute, loaded.Breaker.Cooldown)
	assert.True(t, loaded.Breaker.RequireApproval)

	assert.Equal(t, enum.OrderStyleMarket, loaded.OrderStyle)
	assert.Equal(t, 4, loaded.Executor.MaxRetries)
	assert.Equal(t, "http://gateway:9000/orders", loaded.GatewayURL)
	assert.Equal(t, "25", loaded.Slippage.Bps.String())
	assert.Equal(t, "25", loaded.Backtest.Slippage.Bps.String())
	assert.Equal(t, "0.3", loaded.Strategy.Params["buy_threshold"])

	assert.Equal(t, 14, loaded.BacktestRun.Days)
	assert.Equal(t, "wal", loaded.BacktestRun.Source)
	assert.Equal(t, "secret", loaded.Storage.Postgres.Password)
	assert.Equal(t, "cache:6379", loaded.Storage.Redis.Addr)
	assert.Equal(t, "data/history.db", loaded.Storage.SQLite.Path)

	require.Len(t, loaded.AlertRules, 1)
	assert.Equal(t, "cheap", loaded.AlertRules[0].Name)
	assert.Equal(t, 5*time.Minute, loaded.AlertRules[0].Cooldown)

	assert.True(t, loaded.Features.EnableCache)
	assert.False(t, loaded.Features.EnableFeed)
	assert.True(t, loaded.Features.EnableRecorder)
	assert.False(t, loaded.Features.EnablePostgres)
}

func TestLiveModeRequiresTradingFlag(t *testing.T) {
	testCases := []struct {
		desc string
		env  string
		want og.Mode
	}{
		{desc: "unset", env: "", want: og.ModeSimulated},
		{desc: "false", env: "false", want: og.ModeSimulated},
		{desc: "garbage", env: "yes please", want: og.ModeSimulated},
		{desc: "true", env: "true", want: og.ModeLive},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			loaded, err := Parse([]byte("mode: live\nexecutor:\n  gateway_url: http://gw\n"), envOf(map[string]string{envEnableTrading: tc.env}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, loaded.Mode)
		})
	}
}

func TestDefaults(t *testing.T) {
	loaded := Default()
	assert.Equal(t, og.ModeSimulated, loaded.Mode)
	assert.Equal(t, "1000", loaded.InitialCash.String())
	assert.Equal(t, "threshold", loaded.Strategy.Name)
	assert.Equal(t, enum.OrderStyleLimit, loaded.OrderStyle)
	assert.Equal(t, 7, loaded.BacktestRun.Days)
	assert.Equal(t, ":8080", loaded.Admin.Addr)
	assert.Equal(t, "polymarket", loaded.Feed.Source)
	assert.Equal(t, time.Second, loaded.Feed.Interval)
	assert.True(t, loaded.Features.EnableFeed)
	assert.False(t, loaded.Features.EnableProfiling)
	assert.Empty(t, loaded.AlertRules)
}

func TestParseRejectsBadConfig(t *testing.T) {
	testCases := []struct {
		desc string
		yaml string
	}{
		{desc: "unknown mode", yaml: "mode: yolo\n"},
		{desc: "zero cash", yaml: "initial_cash: 0\n"},
		{desc: "bad style", yaml: "executor:\n  order_style: iceberg\n"},
		{desc: "negative retries", yaml: "executor:\n  max_retries: -1\n"},
		{desc: "unknown strategy", yaml: "strategy:\n  name: moon\n"},
		{desc: "bad feed source", yaml: "feed:\n  source: carrier-pigeon\n"},
		{desc: "bad backtest source", yaml: "backtest:\n  source: s3\n"},
		{desc: "rule without threshold", yaml: "alerts:\n  rules:\n    - name: empty\n"},
		{desc: "live without gateway", yaml: "mode: live\n"},
		{desc: "negative trades", yaml: "risk:\n  max_daily_trades: -2\n"},
		{desc: "broken yaml", yaml: "risk: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial_cash: 42\n"), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.InitialCash.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
