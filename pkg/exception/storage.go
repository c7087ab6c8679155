package exception

import "github.com/yanun0323/errors"

var (
	ErrStorageNotFound = errors.New("storage: not found")
)
