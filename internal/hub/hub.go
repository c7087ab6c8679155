// Package hub fans ticks out to per-instrument workers and to independent
// observers.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yanun0323/logs"

	"polytrader/internal/bus"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/pkg/exception"
)

var ErrNotRunning = errors.New("hub: not running")

const (
	defaultInstrumentQueue = 1024
	defaultObserverQueue   = 4096
)

// Handler processes the events of one instrument. Calls for the same
// instrument never overlap.
type Handler interface {
	HandleTick(ctx context.Context, tick model.Tick)
	HandleFill(ctx context.Context, fill model.Fill)
}

// Observer consumes ticks off the trading path.
type Observer interface {
	Name() string
	ObserveTick(ctx context.Context, tick model.Tick) error
}

type Config struct {
	InstrumentQueueSize int
	ObserverQueueSize   int
}

type event struct {
	tick model.Tick
	fill *model.Fill
}

// Hub routes every event of an instrument to one worker goroutine, so
// per-instrument order is kept while instruments run in parallel.
type Hub struct {
	cfg     Config
	handler Handler
	metrics *obs.Metrics

	mu        sync.Mutex
	ctx       context.Context
	running   bool
	workers   map[string]*bus.Queue[event]
	observers []*observerLoop
	wg        sync.WaitGroup
}

func New(cfg Config, handler Handler, metrics *obs.Metrics) (*Hub, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: hub handler", exception.ErrNilInstance)
	}
	if cfg.InstrumentQueueSize <= 0 {
		cfg.InstrumentQueueSize = defaultInstrumentQueue
	}
	if cfg.ObserverQueueSize <= 0 {
		cfg.ObserverQueueSize = defaultObserverQueue
	}
	return &Hub{
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		workers: make(map[string]*bus.Queue[event]),
	}, nil
}

// AddObserver registers an observer with its own queue. Observers added
// after Start begin receiving ticks immediately.
func (h *Hub) AddObserver(o Observer) {
	if o == nil {
		return
	}
	loop := &observerLoop{observer: o, queue: bus.NewQueue[model.Tick](h.cfg.ObserverQueueSize), metrics: h.metrics}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, loop)
	if h.running {
		h.spawn(func(ctx context.Context) { loop.run(ctx) })
	}
}

// Start launches the observer loops. Instrument workers start lazily.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.ctx = ctx
	h.running = true
	for _, loop := range h.observers {
		h.spawn(func(ctx context.Context) { loop.run(ctx) })
	}
}

// PublishTick hands a tick to its instrument worker, waiting while that
// worker's queue is full, and offers it to every observer without waiting.
func (h *Hub) PublishTick(ctx context.Context, tick model.Tick) error {
	q, observers, err := h.route(tick.InstrumentID)
	if err != nil {
		return err
	}
	if err := q.Publish(ctx, event{tick: tick}); err != nil {
		return err
	}
	for _, loop := range observers {
		loop.offer(tick)
	}
	return nil
}

// PublishFill hands a venue fill report to the worker of its instrument.
func (h *Hub) PublishFill(ctx context.Context, fill model.Fill) error {
	q, _, err := h.route(fill.InstrumentID)
	if err != nil {
		return err
	}
	return q.Publish(ctx, event{fill: &fill})
}

// Instruments returns the number of instrument workers.
func (h *Hub) Instruments() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.workers)
}

// Close stops accepting events, lets queued events drain and waits for every
// goroutine.
func (h *Hub) Close() {
	h.mu.Lock()
	h.running = false
	for _, q := range h.workers {
		q.Close()
	}
	for _, loop := range h.observers {
		loop.queue.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) route(instrumentID string) (*bus.Queue[event], []*observerLoop, error) {
	if instrumentID == "" {
		return nil, nil, exception.ErrMissingInstrument
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return nil, nil, ErrNotRunning
	}
	q, ok := h.workers[instrumentID]
	if !ok {
		q = bus.NewQueue[event](h.cfg.InstrumentQueueSize)
		h.workers[instrumentID] = q
		h.spawn(func(ctx context.Context) {
			q.Run(ctx, func(e event) { h.dispatch(ctx, instrumentID, e) })
		})
		logs.Debugf("hub: worker started for %s", instrumentID)
	}
	return q, h.observers, nil
}

func (h *Hub) dispatch(ctx context.Context, instrumentID string, e event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("hub: worker %s recovered, err: %+v", instrumentID, r)
		}
	}()
	if e.fill != nil {
		h.handler.HandleFill(ctx, *e.fill)
		return
	}
	h.handler.HandleTick(ctx, e.tick)
}

// spawn must be called with h.mu held.
func (h *Hub) spawn(fn func(ctx context.Context)) {
	ctx := h.ctx
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(ctx)
	}()
}

type observerLoop struct {
	observer Observer
	queue    *bus.Queue[model.Tick]
	metrics  *obs.Metrics
}

func (l *observerLoop) offer(tick model.Tick) {
	err := l.queue.TryPublish(tick)
	switch {
	case err == nil:
	case errors.Is(err, bus.ErrQueueFull):
		l.metrics.IncObserverDrop()
		logs.Debugf("hub: observer %s queue full, tick dropped", l.observer.Name())
	default:
		logs.Debugf("hub: observer %s, err: %+v", l.observer.Name(), err)
	}
}

func (l *observerLoop) run(ctx context.Context) {
	l.queue.Run(ctx, func(tick model.Tick) {
		defer func() {
			if r := recover(); r != nil {
				logs.Errorf("hub: observer %s panicked, err: %+v", l.observer.Name(), r)
			}
		}()
		if err := l.observer.ObserveTick(ctx, tick); err != nil {
			logs.Warnf("hub: observer %s failed on %s, err: %+v", l.observer.Name(), tick.InstrumentID, err)
		}
	})
}
