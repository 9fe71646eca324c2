package engine

import (
	"errors"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// Errors returned by VirtualBuffer operations.
var (
	// ErrOutOfRange is returned in strict mode for offsets or ranges outside
	// the buffer. It matches chunktree range errors.
	ErrOutOfRange = chunktree.ErrOutOfRange

	// ErrReadOnly indicates a mutation on a read-only buffer.
	ErrReadOnly = errors.New("engine: buffer is read-only")

	// ErrNoSavePoint indicates the save-point snapshot is no longer retained.
	ErrNoSavePoint = errors.New("engine: save point not retained")
)

// errStaleIterator marks an iterator whose tracked version can no longer be
// related to the current one. Iterators recover by re-seeking; it never
// leaves this package.
var errStaleIterator = errors.New("engine: iterator window is stale")
