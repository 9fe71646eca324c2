package cache

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// Defaults for a buffer cache.
const (
	DefaultBudget    = 8 << 20
	DefaultBlockSize = 4096
)

// ErrCapacity reports a block that cannot fit in the cache's budget. The
// block is still returned to the caller, just not retained.
var ErrCapacity = errors.New("cache: block exceeds budget")

// Key identifies one cached block.
type Key struct {
	Version chunktree.Version
	Block   int64
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Rejected  uint64
	Bytes     int64
	Entries   int
}

// Cache is a byte-budgeted LRU of materialized blocks. It is safe for
// concurrent use.
type Cache struct {
	entries   *lru.Cache[Key, []byte]
	budget    int64
	blockSize int64

	bytes     atomic.Int64
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a cache holding at most budget bytes of blockSize blocks.
func New(budget int64, blockSize int) (*Cache, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	c := &Cache{budget: budget, blockSize: int64(blockSize)}

	// The LRU is bounded by entry count as well; allow enough entries for a
	// budget made of small trailing blocks.
	count := int(budget/int64(min(blockSize, 256))) + 1
	entries, err := lru.NewWithEvict[Key, []byte](count, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) onEvict(_ Key, v []byte) {
	c.bytes.Add(-int64(len(v)))
}

// BlockSize returns the block size in bytes.
func (c *Cache) BlockSize() int64 {
	return c.blockSize
}

// Budget returns the byte budget.
func (c *Cache) Budget() int64 {
	return c.budget
}

// GetOrMaterialize returns the cached block for key, calling load on a
// miss and retaining the result. The returned slice must not be modified.
func (c *Cache) GetOrMaterialize(key Key, load func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	data, err := load()
	if err != nil {
		return nil, err
	}
	if err := c.admit(key, data); errors.Is(err, ErrCapacity) {
		c.rejected.Add(1)
	}
	return data, nil
}

// admit stores data under key and evicts until the budget holds.
func (c *Cache) admit(key Key, data []byte) error {
	if int64(len(data)) > c.budget {
		return ErrCapacity
	}
	if present, _ := c.entries.ContainsOrAdd(key, data); present {
		return nil
	}
	c.bytes.Add(int64(len(data)))
	for c.bytes.Load() > c.budget {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
		c.evictions.Add(1)
	}
	return nil
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.entries.Purge()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
		Bytes:     c.bytes.Load(),
		Entries:   c.entries.Len(),
	}
}
