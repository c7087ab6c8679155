package exception

import "github.com/yanun0323/errors"

var (
	ErrLedgerInvalidFill = errors.New("ledger: invalid fill")
	ErrLedgerOversell    = errors.New("ledger: sell exceeds position")
	ErrLedgerNoPosition  = errors.New("ledger: no position")
)
