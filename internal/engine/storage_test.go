package engine

import (
	"sync/atomic"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// countingStorage wraps a chunk tree and counts reads that reach it, so
// tests can tell cache hits from store traversals.
type countingStorage struct {
	*chunktree.Tree
	reads     atomic.Int64
	readBytes atomic.Int64
}

func newCountingStorage(opts ...chunktree.Option) *countingStorage {
	return &countingStorage{Tree: chunktree.New(opts...)}
}

func (s *countingStorage) Read(start, end int64) ([]byte, error) {
	s.reads.Add(1)
	s.readBytes.Add(end - start)
	return s.Tree.Read(start, end)
}

func (s *countingStorage) reset() {
	s.reads.Store(0)
	s.readBytes.Store(0)
}

var _ Storage = (*countingStorage)(nil)
