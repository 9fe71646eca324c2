package engine

import (
	"github.com/dshills/tessera/internal/engine/cache"
	"github.com/dshills/tessera/internal/engine/chunktree"
)

// Default configuration values.
const (
	DefaultMaxUndo        = 1000
	DefaultIteratorWindow = 4096
)

type options struct {
	storage     Storage
	chunkSize   int
	maxGap      int64
	cacheBudget int64
	cacheBlock  int
	maxUndo     int
	window      int
	strict      bool
	readOnly    bool
}

func defaultOptions() options {
	return options{
		chunkSize:   chunktree.DefaultChunkSize,
		cacheBudget: cache.DefaultBudget,
		cacheBlock:  cache.DefaultBlockSize,
		maxUndo:     DefaultMaxUndo,
		window:      DefaultIteratorWindow,
	}
}

// Option configures a VirtualBuffer during creation.
type Option func(*options)

// WithStorage sets the backing store. It overrides WithChunkSize and
// WithMaxGap.
func WithStorage(s Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithChunkSize sets the maximum chunk size of the default store.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithMaxGap permits sparse inserts up to n bytes past the end of content.
func WithMaxGap(n int64) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxGap = n
		}
	}
}

// WithCacheBudget sets the cache byte budget.
func WithCacheBudget(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheBudget = n
		}
	}
}

// WithCacheBlock sets the cache block size.
func WithCacheBlock(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheBlock = n
		}
	}
}

// WithMaxUndo sets how many undo groups GC keeps reachable. Zero keeps all.
func WithMaxUndo(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxUndo = n
		}
	}
}

// WithIteratorWindow sets the window size of new iterators.
func WithIteratorWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithStrictRanges makes out-of-range requests fail with ErrOutOfRange
// instead of being clamped.
func WithStrictRanges() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithReadOnly creates a read-only buffer. Mutations return ErrReadOnly.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}
