package og

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

// Mode selects where orders go.
type Mode uint8

const (
	ModeSimulated Mode = iota
	ModeLive
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "dry-run"
}

// Venue places orders on a live execution venue. Fills are reported later.
type Venue interface {
	Place(ctx context.Context, req model.OrderRequest) (venueOrderID string, err error)
}

// IDGenerator produces unique order ids.
type IDGenerator interface {
	NextID() string
}

// UUIDGenerator issues random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() string {
	return uuid.NewString()
}

// SequenceGenerator issues prefix-000001 style ids. Used where runs must be
// reproducible.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequenceGenerator) NextID() string {
	return fmt.Sprintf("%s-%06d", g.Prefix, g.n.Add(1))
}

// Config controls the executor.
type Config struct {
	Mode               Mode
	MaxOrdersPerWindow int
	Window             time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
}

// DefaultConfig returns dry-run settings with the standard rate window.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeSimulated,
		MaxOrdersPerWindow: 10,
		Window:             60 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       500 * time.Millisecond,
	}
}

// RateLimitedError defers a request until the window has room again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry after %s", exception.ErrOrderRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return exception.ErrOrderRateLimited
}

// Result is the outcome of a submission. Fill is set only when the order
// filled synchronously.
type Result struct {
	Order     model.Order
	Fill      *model.Fill
	Duplicate bool
}

// Executor is the rate-limited, idempotent order submitter.
type Executor struct {
	cfg   Config
	venue Venue
	ids   IDGenerator

	mu     sync.Mutex
	orders *StateMachine
	window *SlidingWindow
}

// NewExecutor creates an executor. venue is required in live mode.
func NewExecutor(cfg Config, venue Venue, ids IDGenerator) (*Executor, error) {
	if cfg.Mode == ModeLive && venue == nil {
		return nil, exception.ErrOrderNilVenue
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Executor{
		cfg:    cfg,
		venue:  venue,
		ids:    ids,
		orders: NewStateMachine(),
		window: NewSlidingWindow(cfg.MaxOrdersPerWindow, cfg.Window),
	}, nil
}

func (e *Executor) Mode() Mode {
	return e.cfg.Mode
}

// NewID returns a fresh order id for a request.
func (e *Executor) NewID() string {
	return e.ids.NextID()
}

// Submit accepts a request and executes it. A request whose ClientOrderID is
// already known returns the existing order without side effects. When the
// rate window is full the request is deferred with *RateLimitedError and no
// order is created.
func (e *Executor) Submit(ctx context.Context, req model.OrderRequest, now time.Time) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	if req.ClientOrderID != "" {
		if existing, ok := e.orders.Order(req.ClientOrderID); ok {
			e.mu.Unlock()
			return Result{Order: existing, Duplicate: true}, nil
		}
	}

	if ok, wait := e.window.Allow(now); !ok {
		e.mu.Unlock()
		return Result{}, &RateLimitedError{RetryAfter: wait}
	}

	id := req.ClientOrderID
	if id == "" {
		id = e.ids.NextID()
	}
	order, err := e.orders.Register(model.Order{
		ID:           id,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Style:        req.Style,
		Price:        req.Price,
		Size:         req.Size,
		Reason:       req.Reason,
		CreatedAt:    now,
	})
	if err != nil {
		e.mu.Unlock()
		return Result{}, err
	}

	if e.cfg.Mode == ModeSimulated {
		order, err = e.orders.Transition(id, enum.OrderStatusFilled, func(o *model.Order) {
			o.Attempts = 1
			o.FilledAt = now
		})
		e.mu.Unlock()
		if err != nil {
			return Result{}, err
		}
		fill := fillOf(order, order.Price, order.Size, now)
		return Result{Order: order, Fill: &fill}, nil
	}
	e.mu.Unlock()

	req.ClientOrderID = id
	return e.place(ctx, order, req)
}

// place sends the order to the venue with bounded retries. No lock is held
// while the venue is called.
func (e *Executor) place(ctx context.Context, order model.Order, req model.OrderRequest) (Result, error) {
	var (
		venueID string
		err     error
		attempt int
	)
	for attempt = 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		venueID, err = e.venue.Place(ctx, req)
		if err == nil {
			break
		}
		logs.Warnf("place order %s attempt %d failed, err: %+v", order.ID, attempt, err)
		if attempt > e.cfg.MaxRetries || !sleepCtx(ctx, e.cfg.RetryBackoff*time.Duration(attempt)) {
			break
		}
	}
	attempts := min(attempt, e.cfg.MaxRetries+1)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		failed, terr := e.orders.Transition(order.ID, enum.OrderStatusFailed, func(o *model.Order) {
			o.Attempts = attempts
			o.Error = err.Error()
		})
		if terr != nil {
			return Result{}, terr
		}
		return Result{Order: failed}, errors.Wrap(exception.ErrOrderExecution, err.Error()).With("order_id", order.ID)
	}

	o, ok := e.orders.orders[order.ID]
	if !ok {
		return Result{}, exception.ErrOrderUnknown
	}
	o.VenueOrderID = venueID
	o.Attempts = attempts
	return Result{Order: *o}, nil
}

// ConfirmFill marks a pending live order filled from a venue report and
// returns the fill to apply to the ledger. Zero price or size in the report
// keep the requested values.
func (e *Executor) ConfirmFill(report model.Fill) (model.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.orders.Transition(report.OrderID, enum.OrderStatusFilled, func(o *model.Order) {
		o.FilledAt = report.Timestamp
		if report.Price.IsPositive() {
			o.Price = report.Price
		}
		if report.Size.IsPositive() {
			o.Size = report.Size
		}
	})
	if err != nil {
		return model.Fill{}, err
	}
	return fillOf(order, order.Price, order.Size, report.Timestamp), nil
}

// Cancel marks a pending order cancelled.
func (e *Executor) Cancel(orderID string) (model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Transition(orderID, enum.OrderStatusCancelled, nil)
}

// Order returns the current record of an order.
func (e *Executor) Order(id string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Order(id)
}

// Pending returns live orders still waiting for a fill.
func (e *Executor) Pending() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Pending()
}

// Prune forgets terminal orders created before the cutoff.
func (e *Executor) Prune(before time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Prune(before)
}

// WindowCount returns the submissions inside the current rate window.
func (e *Executor) WindowCount(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Count(now)
}

func validate(req model.OrderRequest) error {
	switch {
	case req.InstrumentID == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "missing instrument")
	case !req.Side.IsAvailable():
		return errors.Wrap(exception.ErrOrderInvalidRequest, "invalid side")
	case !req.Size.IsPositive():
		return errors.Wrap(exception.ErrOrderInvalidRequest, "non-positive size")
	case !req.Price.IsPositive():
		return errors.Wrap(exception.ErrOrderInvalidRequest, "non-positive price")
	}
	return nil
}

func fillOf(o model.Order, price, size decimal.Decimal, ts time.Time) model.Fill {
	return model.Fill{
		OrderID:      o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Price:        price,
		Size:         size,
		Timestamp:    ts,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
