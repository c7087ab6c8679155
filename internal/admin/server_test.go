package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/engine"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/og"
	"polytrader/internal/risk"
	"polytrader/internal/state"
	"polytrader/internal/store"
	"polytrader/internal/strategy"
)

var t0 = time.Date(2026, 7, 3, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	ledger := state.NewLedger(d("1000"))
	riskEngine := risk.NewEngine(risk.DefaultLimits(), risk.BreakerConfig{Cooldown: time.Hour, RequireApproval: true}, ledger, ledger.Equity())
	exec, err := og.NewExecutor(og.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	strat, err := strategy.DefaultRegistry().New("threshold", strategy.Params{"buy_threshold": "0.25", "order_size": "10"})
	require.NoError(t, err)

	metrics := obs.NewMetrics()
	repo := store.NewMemory()
	eng, err := engine.New(engine.Config{}, engine.Deps{
		Risk:       riskEngine,
		Ledger:     ledger,
		Executor:   exec,
		Strategy:   strat,
		Repository: repo,
		Metrics:    metrics,
	})
	require.NoError(t, err)

	s := New(eng, repo, metrics)
	s.now = func() time.Time { return t0 }
	return s, eng
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusAndPositions(t *testing.T) {
	s, eng := newServer(t)
	out := eng.OnTick(t.Context(), model.Tick{InstrumentID: "token-a", Price: d("0.2"), Volume: d("50"), Timestamp: t0})
	require.NotNil(t, out.Fill)

	rec := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "dry-run", status.Mode)
	assert.Equal(t, "threshold", status.Strategy)
	assert.Equal(t, "998", status.Cash.String())
	assert.Equal(t, "1000", status.Equity.String())
	assert.Equal(t, 1, status.Positions)
	assert.False(t, status.Breaker.Halted())

	rec = do(t, s, http.MethodGet, "/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []model.Position
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "10", positions[0].Size.String())

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/positions/token-a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/positions/nope", "").Code)
}

func TestTradesLimit(t *testing.T) {
	s, _ := newServer(t)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/trades?limit=5", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/trades?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/trades?limit=abc", "").Code)

	s.repo = nil
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/trades", "").Code)
}

func TestBreakerHaltAndApprove(t *testing.T) {
	s, eng := newServer(t)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/breaker/approve", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/breaker/halt", `{}`).Code)

	rec := do(t, s, http.MethodPost, "/breaker/halt", `{"reason":"venue outage"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, eng.Risk().Breaker(t0).Halted())
	assert.Contains(t, rec.Body.String(), "venue outage")

	rec = do(t, s, http.MethodPost, "/breaker/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state risk.BreakerState
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Approved)
	assert.False(t, eng.Risk().Breaker(t0.Add(2*time.Hour)).Halted())
}

func TestMetricsAndHealth(t *testing.T) {
	s, eng := newServer(t)
	eng.OnTick(t.Context(), model.Tick{InstrumentID: "token-a", Price: d("0.5"), Timestamp: t0})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap obs.Snapshot
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Ticks)
}

type sinkFunc func(model.Fill) error

func (f sinkFunc) PublishFill(_ context.Context, fill model.Fill) error {
	return f(fill)
}

func TestReportFill(t *testing.T) {
	s, eng := newServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/fills", `{"order_id":"x"}`).Code)

	var got []model.Fill
	s.WithFills(sinkFunc(func(f model.Fill) error {
		got = append(got, f)
		return nil
	}))

	out := eng.OnTick(t.Context(), model.Tick{InstrumentID: "token-a", Price: d("0.2"), Timestamp: t0})
	require.NotNil(t, out.Order)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/fills", `{"order_id":"missing"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/fills", `{"price":"0.2"}`).Code)

	rec := do(t, s, http.MethodPost, "/fills", `{"order_id":"`+out.Order.ID+`","price":"0.21","size":"10"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, got, 1)
	assert.Equal(t, "token-a", got[0].InstrumentID)
	assert.Equal(t, "0.21", got[0].Price.String())
	assert.Equal(t, t0, got[0].Timestamp)
}
