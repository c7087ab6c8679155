package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
	"polytrader/internal/risk"
	"polytrader/pkg/exception"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestLatestTick(t *testing.T) {
	fake := newFakeRedis()
	c := newCache(fake, Option{TickTTL: time.Minute})

	_, err := c.Latest(t.Context(), "token-a")
	require.ErrorIs(t, err, exception.ErrStorageNotFound)

	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []string{"0.41", "0.43"} {
		require.NoError(t, c.ObserveTick(t.Context(), model.Tick{InstrumentID: "token-a", Price: decimal.RequireFromString(p), Timestamp: at}))
	}

	got, err := c.Latest(t.Context(), "token-a")
	require.NoError(t, err)
	assert.Equal(t, "0.43", got.Price.String())
	assert.True(t, at.Equal(got.Timestamp))
	assert.Equal(t, time.Minute, fake.ttl["polytrader:tick:token-a"])
}

func TestBreakerState(t *testing.T) {
	c := newCache(newFakeRedis(), Option{Prefix: "test"})

	_, err := c.LoadBreaker(t.Context())
	require.ErrorIs(t, err, exception.ErrStorageNotFound)

	halted := risk.BreakerState{
		State:      risk.StateHalted,
		HaltReason: "5 consecutive losses",
		HaltedAt:   time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SaveBreaker(t.Context(), halted))

	got, err := c.LoadBreaker(t.Context())
	require.NoError(t, err)
	assert.True(t, got.Halted())
	assert.Equal(t, halted.HaltReason, got.HaltReason)
	assert.True(t, halted.HaltedAt.Equal(got.HaltedAt))
}
