package engine

import "github.com/dshills/tessera/internal/engine/chunktree"

// Storage is the backing-store capability behind a VirtualBuffer. The
// in-memory chunk tree is the default variant; alternatives are selected
// at construction with WithStorage.
type Storage interface {
	Len() int64
	Version() chunktree.Version
	Snapshot() chunktree.Snapshot
	Read(start, end int64) ([]byte, error)
	Insert(offset int64, data []byte) (chunktree.Version, error)
	Delete(start, end int64) (chunktree.Version, error)
	InsertGap(offset, n int64) (chunktree.Version, error)

	At(v chunktree.Version) (chunktree.Snapshot, bool)
	Restore(v chunktree.Version) bool
	Retag(v chunktree.Version)
	Replace(s chunktree.Snapshot) chunktree.Version
	Prune(keep func(chunktree.Version) bool) int
	Config() chunktree.Config
}

var _ Storage = (*chunktree.Tree)(nil)
