package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest = errors.New("order: invalid request")
	ErrOrderRateLimited    = errors.New("order: rate limited")
	ErrOrderExecution      = errors.New("order: execution failed")
	ErrOrderDuplicate      = errors.New("order: duplicate order")
	ErrOrderUnknown        = errors.New("order: unknown order")
	ErrOrderTransition     = errors.New("order: invalid transition")
	ErrOrderNilVenue       = errors.New("order: nil venue")
)
