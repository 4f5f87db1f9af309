package idtree

import (
	"errors"

	"idtree/internal/algo"
	"idtree/internal/base"
	"idtree/internal/storage"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrTreeClosed         = errors.New("tree is closed")
	ErrDeleteNotSupported = errors.New("delete is not supported")
	ErrCorruption         = errors.New("data corruption detected")
	ErrTreeFailed         = errors.New("tree failed after a WAL error, reopen required")

	ErrFileFull      = algo.ErrFileFull
	ErrTreeCorrupt   = algo.ErrTreeCorrupt
	ErrTreeTooDeep   = algo.ErrTreeTooDeep
	ErrLocked        = storage.ErrLocked
	ErrShortRead     = storage.ErrShortRead
	ErrCorruptPage   = base.ErrCorruptPage
	ErrUnknownTag    = base.ErrUnknownTag
	ErrInvalidHeader = base.ErrInvalidHeader
	ErrNullRoot      = base.ErrNullRoot
)
