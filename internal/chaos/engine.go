package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

// Event is a tick after chaos, with the simulated delivery delay.
type Event struct {
	Tick  model.Tick
	Delay time.Duration
}

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	CorruptRate   float64
	ReorderWindow int
	MaxDelay      time.Duration
}

// Engine applies chaos rules to a tick stream.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []Event
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"dropRate", c.DropRate},
		{"duplicateRate", c.DuplicateRate},
		{"corruptRate", c.CorruptRate},
	} {
		if r.v < 0 || r.v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", r.name)
		}
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// Process applies chaos to a single tick and returns any output events.
func (e *Engine) Process(t model.Tick) []Event {
	ev := Event{Tick: t}
	if e == nil {
		return []Event{ev}
	}
	if e.shouldDrop() {
		return nil
	}
	ev = e.applyCorrupt(e.applyDelay(ev))
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.popRandom())
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]Event, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.popRandom())...)
	}
	return out
}

func (e *Engine) popRandom() Event {
	idx := e.rng.Intn(len(e.pending))
	ev := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return ev
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(ev Event) []Event {
	out := []Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, ev)
	}
	return out
}

// applyCorrupt pushes the price outside the probability range.
func (e *Engine) applyCorrupt(ev Event) Event {
	if e.cfg.CorruptRate <= 0 || e.rng.Float64() >= e.cfg.CorruptRate {
		return ev
	}
	if e.rng.Intn(2) == 0 {
		ev.Tick.Price = ev.Tick.Price.Neg()
	} else {
		ev.Tick.Price = ev.Tick.Price.Add(decimal.NewFromInt(1))
	}
	return ev
}

func (e *Engine) applyDelay(ev Event) Event {
	if e.cfg.MaxDelay <= 0 {
		return ev
	}
	ev.Delay = time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	return ev
}
