package og

import (
	"time"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
	"polytrader/pkg/exception"
)

// StateMachine keeps the lifecycle of every accepted order. Transitions are
// monotonic: a terminal order never changes again. Not safe for concurrent use.
type StateMachine struct {
	orders map[string]*model.Order
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*model.Order)}
}

// Order returns a copy of the current order state.
func (m *StateMachine) Order(id string) (model.Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Register adds a new order in pending state.
func (m *StateMachine) Register(o model.Order) (model.Order, error) {
	if o.ID == "" {
		return model.Order{}, exception.ErrOrderUnknown
	}
	if _, ok := m.orders[o.ID]; ok {
		return model.Order{}, exception.ErrOrderDuplicate
	}
	o.Status = enum.OrderStatusPending
	m.orders[o.ID] = &o
	return o, nil
}

// Transition moves an order to a new status and applies update to it.
func (m *StateMachine) Transition(id string, to enum.OrderStatus, update func(*model.Order)) (model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, exception.ErrOrderUnknown
	}
	if !canTransition(o.Status, to) {
		return *o, exception.ErrOrderTransition
	}
	o.Status = to
	if update != nil {
		update(o)
	}
	return *o, nil
}

// Pending returns the orders still waiting for a terminal status.
func (m *StateMachine) Pending() []model.Order {
	out := make([]model.Order, 0)
	for _, o := range m.orders {
		if o.Status == enum.OrderStatusPending {
			out = append(out, *o)
		}
	}
	return out
}

// Prune drops terminal orders created before the cutoff.
func (m *StateMachine) Prune(before time.Time) int {
	n := 0
	for id, o := range m.orders {
		if o.Status.IsTerminal() && o.CreatedAt.Before(before) {
			delete(m.orders, id)
			n++
		}
	}
	return n
}

func (m *StateMachine) Len() int {
	return len(m.orders)
}

func canTransition(from, to enum.OrderStatus) bool {
	if from.IsTerminal() || !to.IsAvailable() {
		return false
	}
	return from == enum.OrderStatusPending && to != enum.OrderStatusPending
}
