package exception

import "github.com/yanun0323/errors"

// Feed anomalies. Ticks failing these checks are dropped, never fatal.
var (
	ErrMalformedTick     = errors.New("market data: malformed tick")
	ErrMissingInstrument = errors.New("market data: missing instrument")
	ErrMissingPrice      = errors.New("market data: missing price")
	ErrPriceOutOfRange   = errors.New("market data: price out of range")
)
