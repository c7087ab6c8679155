// Package cache keeps fast-changing engine state in Redis: the latest tick of
// every instrument and the circuit breaker state for restarts.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"polytrader/internal/model"
	"polytrader/internal/risk"
	"polytrader/pkg/exception"
)

const defaultPrefix = "polytrader"

// client is the subset of redis commands the cache uses.
type client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Option configures the redis connection.
type Option struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TickTTL  time.Duration
}

// Cache is a redis-backed state cache.
type Cache struct {
	client  client
	prefix  string
	tickTTL time.Duration
}

// New connects to redis.
func New(opt Option) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	return newCache(rdb, opt)
}

func newCache(c client, opt Option) *Cache {
	if opt.Prefix == "" {
		opt.Prefix = defaultPrefix
	}
	return &Cache{client: c, prefix: opt.Prefix, tickTTL: opt.TickTTL}
}

func (c *Cache) tickKey(instrumentID string) string {
	return c.prefix + ":tick:" + instrumentID
}

func (c *Cache) breakerKey() string {
	return c.prefix + ":breaker"
}

// SetLatest stores the latest tick of an instrument.
func (c *Cache) SetLatest(ctx context.Context, tick model.Tick) error {
	b, err := sonic.ConfigStd.Marshal(tick)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.tickKey(tick.InstrumentID), b, c.tickTTL).Err()
}

// Latest returns the latest tick of an instrument, or
// exception.ErrStorageNotFound.
func (c *Cache) Latest(ctx context.Context, instrumentID string) (model.Tick, error) {
	var tick model.Tick
	if err := c.get(ctx, c.tickKey(instrumentID), &tick); err != nil {
		return model.Tick{}, err
	}
	return tick, nil
}

// SaveBreaker stores the breaker state without expiry.
func (c *Cache) SaveBreaker(ctx context.Context, state risk.BreakerState) error {
	b, err := sonic.ConfigStd.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.breakerKey(), b, 0).Err()
}

// LoadBreaker returns the last saved breaker state, or
// exception.ErrStorageNotFound.
func (c *Cache) LoadBreaker(ctx context.Context) (risk.BreakerState, error) {
	var state risk.BreakerState
	if err := c.get(ctx, c.breakerKey(), &state); err != nil {
		return risk.BreakerState{}, err
	}
	return state, nil
}

func (c *Cache) get(ctx context.Context, key string, v any) error {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return exception.ErrStorageNotFound
	}
	if err != nil {
		return err
	}
	return sonic.ConfigStd.Unmarshal(b, v)
}

// Name identifies the cache as a hub observer.
func (c *Cache) Name() string {
	return "latest-tick"
}

// ObserveTick keeps the latest tick of every instrument.
func (c *Cache) ObserveTick(ctx context.Context, tick model.Tick) error {
	return c.SetLatest(ctx, tick)
}

func (c *Cache) Close() error {
	return c.client.Close()
}
