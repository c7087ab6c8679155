package strategy

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"polytrader/pkg/exception"
)

// Params are the raw strategy parameters from configuration.
type Params map[string]string

// Decimal returns the named parameter, or def when missing.
func (p Params) Decimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, ok := p[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return def, errors.Wrapf(exception.ErrInvalidArgument, "strategy param %s=%q", key, raw)
	}
	return v, nil
}

// Factory builds a strategy from parameters.
type Factory func(Params) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("threshold", newThresholdFromParams)
	r.Register("hold", func(Params) (Strategy, error) {
		return Func(func(Input) (Signal, error) { return Hold("hold strategy"), nil }), nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the named strategy wrapped in its fault boundary.
func (r *Registry) New(name string, params Params) (*Guard, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(exception.ErrStrategyUnknown, name)
	}
	s, err := f(params)
	if err != nil {
		return nil, errors.Wrapf(err, "build strategy %s", name)
	}
	return NewGuard(name, s), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newThresholdFromParams(p Params) (Strategy, error) {
	cfg := DefaultThresholdConfig()
	var err error
	if cfg.BuyThreshold, err = p.Decimal("buy_threshold", cfg.BuyThreshold); err != nil {
		return nil, err
	}
	if cfg.SellThreshold, err = p.Decimal("sell_threshold", cfg.SellThreshold); err != nil {
		return nil, err
	}
	if cfg.OrderSize, err = p.Decimal("order_size", cfg.OrderSize); err != nil {
		return nil, err
	}
	if cfg.MaxSpread, err = p.Decimal("max_spread", cfg.MaxSpread); err != nil {
		return nil, err
	}
	return NewThreshold(cfg)
}
