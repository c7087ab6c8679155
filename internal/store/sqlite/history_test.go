package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
)

var t0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestHistoryRangeAndOrder(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer h.Close()

	ctx := t.Context()
	for _, i := range []int{3, 1, 2, 0, 4} {
		require.NoError(t, h.ObserveTick(ctx, model.Tick{
			InstrumentID: "token-a",
			Price:        decimal.New(int64(40+i), -2),
			Volume:       decimal.NewFromInt(10),
			BestBid:      decimal.RequireFromString("0.39"),
			BestAsk:      decimal.RequireFromString("0.45"),
			Timestamp:    t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, h.SaveTick(ctx, model.Tick{InstrumentID: "token-b", Price: decimal.RequireFromString("0.9"), Timestamp: t0}))

	ticks, err := h.Ticks(ctx, "token-a", t0.Add(time.Minute), t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	for i, tick := range ticks {
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Minute), tick.Timestamp)
		assert.Equal(t, decimal.New(int64(41+i), -2).String(), tick.Price.String())
		assert.Equal(t, "0.45", tick.BestAsk.String())
	}

	n, err := h.Prune(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ticks, err = h.Ticks(ctx, "token-a", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ticks, 3)
}
