// Package alert evaluates alert rules against the tick stream and delivers
// fired alerts.
package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"polytrader/internal/condition"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/store"
)

// Engine is a hub observer. It keeps its own price history so rules over a
// time window see every tick.
type Engine struct {
	rules     atomic.Pointer[[]Rule]
	histories *condition.HistorySet
	repo      store.Repository
	notifiers []Notifier
	metrics   *obs.Metrics

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewEngine creates an alert engine. repo and metrics may be nil.
func NewEngine(rules []Rule, historySize int, repo store.Repository, metrics *obs.Metrics, notifiers ...Notifier) *Engine {
	e := &Engine{
		histories: condition.NewHistorySet(historySize),
		repo:      repo,
		notifiers: notifiers,
		metrics:   metrics,
		lastFired: make(map[string]time.Time),
	}
	e.SetRules(rules)
	return e
}

// SetRules replaces the active rules. Cooldowns of rules that keep their name
// carry over.
func (e *Engine) SetRules(rules []Rule) {
	cp := append([]Rule(nil), rules...)
	e.rules.Store(&cp)
}

func (e *Engine) Rules() []Rule {
	return *e.rules.Load()
}

func (e *Engine) Name() string {
	return "alerts"
}

// ObserveTick evaluates every applicable rule and fires those outside their
// cooldown. Returns the first persistence error.
func (e *Engine) ObserveTick(ctx context.Context, tick model.Tick) error {
	history := e.histories.Get(tick.InstrumentID)
	history.Push(tick)

	var firstErr error
	for _, rule := range e.Rules() {
		if !rule.Applies(tick.InstrumentID) || !rule.Evaluate(tick, history) {
			continue
		}
		if !e.arm(rule, tick) {
			continue
		}
		if err := e.fire(ctx, rule, tick); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// arm reports whether a rule may fire now and records the firing time.
func (e *Engine) arm(rule Rule, tick model.Tick) bool {
	key := rule.Name + "|" + tick.InstrumentID
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFired[key]; ok && tick.Timestamp.Sub(last) < rule.Cooldown {
		return false
	}
	e.lastFired[key] = tick.Timestamp
	return true
}

func (e *Engine) fire(ctx context.Context, rule Rule, tick model.Tick) error {
	a := model.Alert{
		ID:           uuid.NewString(),
		RuleName:     rule.Name,
		InstrumentID: tick.InstrumentID,
		Price:        tick.Price,
		Message:      rule.String(),
		Timestamp:    tick.Timestamp,
	}
	e.metrics.IncAlert()

	for _, n := range e.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			logs.Warnf("notify alert %s, err: %+v", a.RuleName, err)
		}
	}

	if e.repo == nil {
		return nil
	}
	if err := e.repo.SaveAlert(ctx, a); err != nil {
		e.metrics.IncPersistenceFailure()
		return err
	}
	return nil
}
