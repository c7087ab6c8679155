package enum

import "fmt"

// OrderStyle is the execution style requested for an order.
type OrderStyle uint8

const (
	_order_style_beg OrderStyle = iota
	OrderStyleLimit
	OrderStyleMarket
	_order_style_end
)

func (s OrderStyle) IsAvailable() bool {
	return s > _order_style_beg && s < _order_style_end
}

func (s OrderStyle) String() string {
	switch s {
	case OrderStyleLimit:
		return "LIMIT"
	case OrderStyleMarket:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStyle) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LIMIT", "limit":
		*s = OrderStyleLimit
	case "MARKET", "market":
		*s = OrderStyleMarket
	default:
		return fmt.Errorf("unknown order style %q", b)
	}
	return nil
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusFailed
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	for v := _order_status_beg + 1; v < _order_status_end; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown order status %q", b)
}
