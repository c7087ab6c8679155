package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/condition"
	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/internal/obs"
	"polytrader/internal/og"
	"polytrader/internal/risk"
	"polytrader/internal/state"
	"polytrader/internal/store"
	"polytrader/internal/strategy"
	"polytrader/pkg/exception"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Config holds the engine settings that are not owned by a collaborator.
type Config struct {
	HistorySize int
	OrderStyle  enum.OrderStyle
	Slippage    og.Slippage
}

// Deps are the collaborators of an engine. Risk, Ledger, Executor and
// Strategy are required.
type Deps struct {
	Risk     *risk.Engine
	Ledger   *state.Ledger
	Executor *og.Executor
	Strategy *strategy.Guard

	// optional
	Repository store.Repository
	Metrics    *obs.Metrics
	TradeIDs   og.IDGenerator
	Listener   Listener
}

// Listener observes engine output. Calls happen on the instrument worker
// and must not block.
type Listener interface {
	OnFill(fill model.Fill)
	OnTrade(trade model.Trade)
}

// Listeners fans engine output out to several listeners in order.
type Listeners []Listener

func (ls Listeners) OnFill(fill model.Fill) {
	for _, l := range ls {
		l.OnFill(fill)
	}
}

func (ls Listeners) OnTrade(trade model.Trade) {
	for _, l := range ls {
		l.OnTrade(trade)
	}
}

// Outcome describes what one tick produced.
type Outcome struct {
	Action   enum.Action
	Reason   enum.TradeReason
	Note     string
	Rejected risk.Reason
	Deferred time.Duration
	Order    *model.Order
	Fill     *model.Fill
	Trade    *model.Trade
	Err      error
}

// Engine is the single context object of a trading session.
type Engine struct {
	cfg       Config
	risk      *risk.Engine
	ledger    *state.Ledger
	executor  *og.Executor
	repo      store.Repository
	metrics   *obs.Metrics
	tradeIDs  og.IDGenerator
	listener  Listener
	histories *condition.HistorySet

	strategy atomic.Pointer[strategy.Guard]
	hydrated sync.Map
}

// New wires an engine from its collaborators.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Risk == nil:
		return nil, fmt.Errorf("%w: risk engine", exception.ErrNilInstance)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", exception.ErrNilInstance)
	case deps.Executor == nil:
		return nil, fmt.Errorf("%w: executor", exception.ErrNilInstance)
	case deps.Strategy == nil:
		return nil, fmt.Errorf("%w: strategy", exception.ErrNilInstance)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = condition.DefaultHistorySize
	}
	if !cfg.OrderStyle.IsAvailable() {
		cfg.OrderStyle = enum.OrderStyleLimit
	}
	if deps.TradeIDs == nil {
		deps.TradeIDs = og.UUIDGenerator{}
	}

	e := &Engine{
		cfg:       cfg,
		risk:      deps.Risk,
		ledger:    deps.Ledger,
		executor:  deps.Executor,
		repo:      deps.Repository,
		metrics:   deps.Metrics,
		tradeIDs:  deps.TradeIDs,
		listener:  deps.Listener,
		histories: condition.NewHistorySet(cfg.HistorySize),
	}
	e.strategy.Store(deps.Strategy)
	return e, nil
}

func (e *Engine) Risk() *risk.Engine {
	return e.risk
}

func (e *Engine) Ledger() *state.Ledger {
	return e.ledger
}

func (e *Engine) Executor() *og.Executor {
	return e.executor
}

func (e *Engine) Strategy() *strategy.Guard {
	return e.strategy.Load()
}

// History returns the rolling history of an instrument.
func (e *Engine) History(instrumentID string) *condition.History {
	return e.histories.Get(instrumentID)
}

// SetStrategy swaps the strategy for subsequent ticks.
func (e *Engine) SetStrategy(g *strategy.Guard) {
	if g != nil {
		e.strategy.Store(g)
		logs.Infof("strategy switched to %s", g.Name())
	}
}

// OnTick processes one tick. Ticks of the same instrument must not be
// processed concurrently.
func (e *Engine) OnTick(ctx context.Context, tick model.Tick) Outcome {
	start := time.Now()
	defer func() { e.metrics.ObserveTick(time.Since(start)) }()

	if tick.InstrumentID == "" || tick.Price.IsNegative() || tick.Price.GreaterThan(one) {
		e.metrics.IncFeedAnomaly()
		return Outcome{Note: "malformed tick"}
	}

	e.hydrate(ctx, tick.InstrumentID)
	history := e.histories.Get(tick.InstrumentID)
	history.Push(tick)
	e.ledger.Mark(tick.InstrumentID, tick.Price)

	pos, _ := e.ledger.Position(tick.InstrumentID)
	if pos.IsOpen() {
		if reason, note, ok := e.forcedExit(pos, tick.Price); ok {
			return e.execute(ctx, tick, enum.SideSell, pos.Size, reason, note)
		}
	}

	sig, err := e.strategy.Load().Decide(strategy.Input{
		Price:    tick.Price,
		Position: pos,
		Market: strategy.Market{
			Tick:    tick,
			History: history.Snapshot(),
			Cash:    e.ledger.Cash(),
		},
	})
	if err != nil {
		e.metrics.IncStrategyFault()
		return Outcome{Note: sig.Reason, Err: err}
	}
	if sig.IsHold() {
		return Outcome{Note: sig.Reason}
	}

	switch sig.Action {
	case enum.ActionBuy:
		return e.execute(ctx, tick, enum.SideBuy, sig.Amount, enum.TradeReasonStrategy, sig.Reason)
	case enum.ActionSell:
		if !pos.IsOpen() {
			return Outcome{Note: "sell signal without position"}
		}
		return e.execute(ctx, tick, enum.SideSell, decimal.Min(sig.Amount, pos.Size), enum.TradeReasonStrategy, sig.Reason)
	}
	return Outcome{Note: sig.Reason}
}

// forcedExit checks stop-loss first, then take-profit.
func (e *Engine) forcedExit(pos model.Position, price decimal.Decimal) (enum.TradeReason, string, bool) {
	limits := e.risk.Limits()
	avg := pos.AveragePrice
	if !avg.IsPositive() {
		return enum.TradeReasonStrategy, "", false
	}

	if limits.StopLossPercent.IsPositive() {
		loss := avg.Sub(price).Div(avg).Mul(hundred)
		if loss.GreaterThanOrEqual(limits.StopLossPercent) {
			return enum.TradeReasonStopLoss, fmt.Sprintf("loss %s%% >= %s%%", loss.StringFixed(2), limits.StopLossPercent), true
		}
	}
	if limits.TakeProfitPercent.IsPositive() {
		gain := price.Sub(avg).Div(avg).Mul(hundred)
		if gain.GreaterThanOrEqual(limits.TakeProfitPercent) {
			return enum.TradeReasonTakeProfit, fmt.Sprintf("gain %s%% >= %s%%", gain.StringFixed(2), limits.TakeProfitPercent), true
		}
	}
	return enum.TradeReasonStrategy, "", false
}

// execute runs an order through risk, the executor and the ledger.
func (e *Engine) execute(ctx context.Context, tick model.Tick, side enum.Side, size decimal.Decimal, reason enum.TradeReason, note string) Outcome {
	action := enum.ActionBuy
	if side == enum.SideSell {
		action = enum.ActionSell
	}
	out := Outcome{Action: action, Reason: reason, Note: note}

	price := e.cfg.Slippage.Price(side, tick)
	if !price.IsPositive() {
		out.Action, out.Note = enum.ActionHold, "no executable price"
		return out
	}
	if side == enum.SideBuy {
		if cost := size.Mul(price); cost.GreaterThan(e.ledger.Cash()) {
			out.Action, out.Note = enum.ActionHold, fmt.Sprintf("insufficient cash for %s", cost)
			return out
		}
	}

	now := tick.Timestamp
	if decision := e.risk.Admit(tick.InstrumentID, side, size, now); !decision.Allowed {
		e.metrics.IncRiskRejection(decision.Reason)
		logs.Debugf("risk rejected %s %s %s on %s: %s", reason, side, size, tick.InstrumentID, decision.Reason)
		out.Action, out.Rejected = enum.ActionHold, decision.Reason
		return out
	}

	req := model.OrderRequest{
		ClientOrderID: e.executor.NewID(),
		InstrumentID:  tick.InstrumentID,
		Side:          side,
		Style:         e.cfg.OrderStyle,
		Price:         price,
		Size:          size,
		Reason:        reason,
	}

	venueStart := time.Now()
	res, err := e.executor.Submit(ctx, req, now)
	if e.executor.Mode() == og.ModeLive {
		e.metrics.ObserveVenue(time.Since(venueStart))
	}

	var limited *og.RateLimitedError
	switch {
	case errors.As(err, &limited):
		e.metrics.IncRateLimited()
		out.Action, out.Deferred, out.Err = enum.ActionHold, limited.RetryAfter, err
		return out
	case err != nil:
		e.metrics.IncOrderFailed()
		logs.Errorf("submit %s %s %s on %s failed, err: %+v", reason, side, size, tick.InstrumentID, err)
		out.Err = err
		if res.Order.ID != "" {
			order := res.Order
			out.Order = &order
			e.persist(ctx, "save order", func(ctx context.Context) error { return e.repo.SaveOrder(ctx, order) })
		}
		return out
	}

	e.metrics.IncOrderSubmitted()
	order := res.Order
	out.Order = &order
	e.persist(ctx, "save order", func(ctx context.Context) error { return e.repo.SaveOrder(ctx, order) })

	if res.Fill == nil {
		return out
	}
	out.Fill = res.Fill
	trade, err := e.book(ctx, *res.Fill, reason)
	out.Trade, out.Err = trade, err
	return out
}

// OnFill applies a fill reported by a live venue.
func (e *Engine) OnFill(ctx context.Context, report model.Fill) (*model.Trade, error) {
	fill, err := e.executor.ConfirmFill(report)
	if err != nil {
		return nil, err
	}
	order, _ := e.executor.Order(fill.OrderID)
	e.persist(ctx, "save order", func(ctx context.Context) error { return e.repo.SaveOrder(ctx, order) })
	return e.book(ctx, fill, order.Reason)
}

// ForceClose books a sale of the whole position of an instrument at price,
// bypassing strategy, risk admission and the venue. Replays use it to flatten
// at the end of a series.
func (e *Engine) ForceClose(ctx context.Context, instrumentID string, price decimal.Decimal, reason enum.TradeReason, now time.Time) (*model.Trade, error) {
	pos, ok := e.ledger.Position(instrumentID)
	if !ok || !pos.IsOpen() {
		return nil, nil
	}
	fill := model.Fill{
		OrderID:      e.executor.NewID(),
		InstrumentID: instrumentID,
		Side:         enum.SideSell,
		Price:        price,
		Size:         pos.Size,
		Timestamp:    now,
	}
	return e.book(ctx, fill, reason)
}

// book applies a fill to the ledger and records the resulting trade.
func (e *Engine) book(ctx context.Context, fill model.Fill, reason enum.TradeReason) (*model.Trade, error) {
	pos, trade, err := e.ledger.ApplyFill(fill)
	if err != nil {
		logs.Errorf("apply fill %s on %s failed, err: %+v", fill.OrderID, fill.InstrumentID, err)
		return nil, err
	}
	e.metrics.IncOrderFilled()
	e.risk.RecordFill(fill.Timestamp)
	if e.listener != nil {
		e.listener.OnFill(fill)
	}

	if pos.IsOpen() {
		e.persist(ctx, "update position", func(ctx context.Context) error { return e.repo.UpdatePosition(ctx, pos) })
	} else {
		e.persist(ctx, "close position", func(ctx context.Context) error {
			return e.repo.ClosePosition(ctx, pos.InstrumentID, fill.Timestamp)
		})
	}

	if trade == nil {
		return nil, nil
	}
	trade.ID = e.tradeIDs.NextID()
	trade.Reason = reason
	e.metrics.IncTrade()

	before := e.risk.Breaker(fill.Timestamp)
	after := e.risk.RecordTrade(trade.PnL, e.ledger.Equity(), fill.Timestamp)
	if after.Halted() && !before.Halted() {
		e.metrics.IncBreakerTrip()
	}

	e.persist(ctx, "save trade", func(ctx context.Context) error { return e.repo.SaveTrade(ctx, *trade) })
	if e.listener != nil {
		e.listener.OnTrade(*trade)
	}
	logs.Infof("trade %s %s %s@%s pnl %s (%s)", trade.InstrumentID, reason, trade.Size, trade.Price, trade.PnL, trade.ID)
	return trade, nil
}

// hydrate loads a persisted position the first time an instrument is seen.
func (e *Engine) hydrate(ctx context.Context, instrumentID string) {
	if e.repo == nil {
		return
	}
	if _, seen := e.hydrated.LoadOrStore(instrumentID, struct{}{}); seen {
		return
	}
	pos, err := e.repo.GetPosition(ctx, instrumentID)
	if err != nil {
		if !errors.Is(err, exception.ErrStorageNotFound) {
			e.metrics.IncPersistenceFailure()
			logs.Warnf("load position %s, err: %+v", instrumentID, err)
		}
		return
	}
	if e.ledger.Hydrate(pos) {
		logs.Infof("restored position %s size %s avg %s", instrumentID, pos.Size, pos.AveragePrice)
	}
}

// Restore seeds the daily risk aggregates from persisted history.
func (e *Engine) Restore(ctx context.Context, now time.Time, lossWindow int) error {
	if e.repo == nil {
		return nil
	}
	midnight := now.UTC().Truncate(24 * time.Hour)
	summary, err := e.repo.GetDailyPnL(ctx, midnight)
	if err != nil {
		return err
	}
	recent, err := e.repo.GetRecentTrades(ctx, lossWindow)
	if err != nil {
		return err
	}
	e.risk.Seed(summary.RealizedPnL, summary.Fills, recent, now)
	logs.Infof("restored daily pnl %s, fills %d, recent trades %d", summary.RealizedPnL, summary.Fills, len(recent))
	return nil
}

// persist runs a repository call. Failures are logged and never stop the engine.
func (e *Engine) persist(ctx context.Context, op string, fn func(context.Context) error) {
	if e.repo == nil {
		return
	}
	if err := fn(ctx); err != nil {
		e.metrics.IncPersistenceFailure()
		logs.Errorf("%s, err: %+v", op, err)
	}
}

// HandleTick runs OnTick for the hub and logs what needs attention.
func (e *Engine) HandleTick(ctx context.Context, tick model.Tick) {
	out := e.OnTick(ctx, tick)
	switch {
	case out.Deferred > 0:
		logs.Infof("%s %s deferred by rate limit, retry after %s", tick.InstrumentID, out.Reason, out.Deferred)
	case out.Rejected != risk.ReasonNone:
		logs.Infof("%s order rejected by risk: %s", tick.InstrumentID, out.Rejected)
	}
}

// HandleFill runs OnFill for the hub.
func (e *Engine) HandleFill(ctx context.Context, fill model.Fill) {
	if _, err := e.OnFill(ctx, fill); err != nil {
		logs.Warnf("apply venue fill %s, err: %+v", fill.OrderID, err)
	}
}
