package exception

import "github.com/yanun0323/errors"

var (
	ErrSubscribeFailed = errors.New("subscribe failed")
)
