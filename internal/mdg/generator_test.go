package mdg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/feed"
	"polytrader/internal/model"
)

var t0 = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestSeriesStaysValid(t *testing.T) {
	cfg := DefaultConfig("a", "b", "c")
	cfg.MaxStep = decimal.RequireFromString("0.2")
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	ticks := g.Series(t0, time.Second, 3000)
	require.Len(t, ticks, 3000)
	for i, tk := range ticks {
		require.NoError(t, feed.Validate(tk), "tick %d", i)
		assert.Equal(t, cfg.Instruments[i%3], tk.InstrumentID)
		assert.True(t, tk.BestBid.LessThanOrEqual(tk.Price))
		assert.True(t, tk.BestAsk.GreaterThanOrEqual(tk.Price))
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a, err := NewGenerator(DefaultConfig("x"))
	require.NoError(t, err)
	b, err := NewGenerator(DefaultConfig("x"))
	require.NoError(t, err)
	assert.Equal(t, a.Series(t0, time.Minute, 100), b.Series(t0, time.Minute, 100))
}

func TestNewGeneratorValidates(t *testing.T) {
	_, err := NewGenerator(DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig("a")
	cfg.StartPrice = decimal.NewFromInt(2)
	_, err = NewGenerator(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig("a")
	cfg.Spread = decimal.NewFromInt(-1)
	_, err = NewGenerator(cfg)
	assert.Error(t, err)
}

type collect struct {
	mu    sync.Mutex
	ticks []model.Tick
}

func (c *collect) PublishTick(_ context.Context, t model.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = append(c.ticks, t)
	return nil
}

func (c *collect) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	g, err := NewGenerator(DefaultConfig("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	pub := &collect{}
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, time.Millisecond, pub) }()

	require.Eventually(t, func() bool { return pub.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
