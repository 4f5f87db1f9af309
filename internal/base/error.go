package base

import "errors"

var (
	ErrCorruptPage   = errors.New("corrupt page")
	ErrUnknownTag    = errors.New("unknown node tag")
	ErrInvalidHeader = errors.New("invalid header")
	ErrNullRoot      = errors.New("header has no root")
)
