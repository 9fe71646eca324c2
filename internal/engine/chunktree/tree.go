package chunktree

import "bytes"

// Version identifies one immutable snapshot of a tree. Versions increase
// monotonically per Tree; zero is the empty initial tree.
type Version uint64

// Config controls chunking and sparse writes.
type Config struct {
	// ChunkSize is the maximum number of bytes in a data chunk.
	ChunkSize int

	// MaxGap is how far past the end of content an insert may land. The
	// skipped region becomes a zero-filled gap.
	MaxGap int64
}

// DefaultConfig returns the default tree configuration.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize}
}

// Option configures a Tree.
type Option func(*Config)

// WithChunkSize sets the maximum data chunk size.
func WithChunkSize(n int) Option {
	return func(c *Config) {
		c.ChunkSize = max(n, MinChunkSize)
	}
}

// WithMaxGap permits inserts up to n bytes past the end of content.
func WithMaxGap(n int64) Option {
	return func(c *Config) {
		c.MaxGap = max(n, 0)
	}
}

// Tree is the mutable handle over a sequence of snapshots. It tracks the
// current snapshot and a registry of retained ones so that undo can jump
// back to an earlier version without recomputing it.
type Tree struct {
	cfg      Config
	cur      Snapshot
	next     Version
	retained map[Version]*node
}

// New creates an empty tree at version zero.
func New(opts ...Option) *Tree {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tree{
		cfg:      cfg,
		next:     1,
		retained: map[Version]*node{0: nil},
	}
}

// FromBytes creates a tree holding a copy of data at version zero.
func FromBytes(data []byte, opts ...Option) *Tree {
	t := New(opts...)
	t.cur.root = build(splitData(data, t.cfg.ChunkSize))
	t.retained[0] = t.cur.root
	return t
}

// Config returns the tree's configuration.
func (t *Tree) Config() Config {
	return t.cfg
}

// Snapshot returns the current immutable snapshot.
func (t *Tree) Snapshot() Snapshot {
	return t.cur
}

// Version returns the current version.
func (t *Tree) Version() Version {
	return t.cur.version
}

// Len returns the current logical length in bytes, gaps included.
func (t *Tree) Len() int64 {
	return t.cur.Len()
}

// Read returns a copy of bytes [start, end) of the current version.
func (t *Tree) Read(start, end int64) ([]byte, error) {
	return t.cur.Read(start, end)
}

// Insert inserts data at offset and returns the new version. An offset past
// the end of content, within MaxGap, first extends the tree with a gap.
// Inserting no bytes at a valid offset is a no-op and returns the current
// version.
func (t *Tree) Insert(offset int64, data []byte) (Version, error) {
	n := t.cur.Len()
	if offset < 0 || offset > n+t.cfg.MaxGap {
		return t.cur.version, rangeErr("insert", offset, offset, n)
	}
	if len(data) == 0 {
		return t.cur.version, nil
	}
	root := t.cur.root
	if offset > n {
		root = concat(root, newLeaf(gapChunk(offset-n)))
	}
	return t.commit(t.insert(root, offset, data)), nil
}

// InsertGap inserts n zero bytes at offset as a gap, which occupies no
// memory until written, and returns the new version.
func (t *Tree) InsertGap(offset, n int64) (Version, error) {
	size := t.cur.Len()
	if offset < 0 || offset > size || n < 0 || n > t.cfg.MaxGap {
		return t.cur.version, rangeErr("insert gap", offset, offset+n, size)
	}
	if n == 0 {
		return t.cur.version, nil
	}
	l, r := split(t.cur.root, offset)
	return t.commit(concat(concat(l, newLeaf(gapChunk(n))), r)), nil
}

// Delete removes bytes [start, end) and returns the new version.
func (t *Tree) Delete(start, end int64) (Version, error) {
	n := t.cur.Len()
	if start < 0 || end < start || end > n {
		return t.cur.version, rangeErr("delete", start, end, n)
	}
	if start == end {
		return t.cur.version, nil
	}
	l, rest := split(t.cur.root, start)
	_, r := split(rest, end-start)
	return t.commit(t.coalesce(l, r)), nil
}

// At returns a retained snapshot.
func (t *Tree) At(v Version) (Snapshot, bool) {
	root, ok := t.retained[v]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{root: root, version: v}, true
}

// Restore makes a retained version current again. Undo and redo use this
// to return to an existing snapshot without minting a new version.
func (t *Tree) Restore(v Version) bool {
	root, ok := t.retained[v]
	if !ok {
		return false
	}
	t.cur = Snapshot{root: root, version: v}
	return true
}

// Replace commits the content of s as a new version and forgets every
// retained snapshot. It is the bulk-load path for opening a file into an
// existing tree.
func (t *Tree) Replace(s Snapshot) Version {
	clear(t.retained)
	return t.commit(s.root)
}

// Retag relabels the current content as version v. It is used when a
// version that was no longer retained has been recomputed by replaying
// edits, so the recomputed root answers to its original version.
func (t *Tree) Retag(v Version) {
	t.cur.version = v
	t.retained[v] = t.cur.root
}

// Prune drops retained snapshots for which keep returns false. The current
// version is always kept.
func (t *Tree) Prune(keep func(Version) bool) int {
	var dropped int
	for v := range t.retained {
		if v != t.cur.version && !keep(v) {
			delete(t.retained, v)
			dropped++
		}
	}
	return dropped
}

// Retained returns the number of retained snapshots.
func (t *Tree) Retained() int {
	return len(t.retained)
}

func (t *Tree) commit(root *node) Version {
	v := t.next
	t.next++
	t.cur = Snapshot{root: root, version: v}
	t.retained[v] = root
	return v
}

// insert splits root at offset and places data between the halves, folding
// it into a neighbouring data chunk when the result still fits.
func (t *Tree) insert(root *node, offset int64, data []byte) *node {
	l, r := split(root, offset)
	size := t.cfg.ChunkSize
	if len(data) < size {
		if l != nil && l.size > 0 {
			if rest, last := popLast(l); !last.isGap() && int(last.n)+len(data) <= size {
				merged := make([]byte, 0, int(last.n)+len(data))
				merged = append(append(merged, last.data...), data...)
				return concat(concat(rest, newLeaf(newChunk(merged))), r)
			}
		}
		if r != nil && r.size > 0 {
			if rest, first := popFirst(r); !first.isGap() && int(first.n)+len(data) <= size {
				merged := make([]byte, 0, int(first.n)+len(data))
				merged = append(append(merged, data...), first.data...)
				return concat(l, concat(newLeaf(newChunk(merged)), rest))
			}
		}
	}
	return concat(concat(l, build(splitData(data, size))), r)
}

// coalesce joins l and r, merging the two boundary chunks when both are
// data chunks and together fit in one chunk.
func (t *Tree) coalesce(l, r *node) *node {
	if l == nil || r == nil {
		return concat(l, r)
	}
	lrest, last := popLast(l)
	rrest, first := popFirst(r)
	if last.isGap() || first.isGap() || int(last.n+first.n) > t.cfg.ChunkSize {
		return concat(l, r)
	}
	merged := make([]byte, 0, last.n+first.n)
	merged = append(append(merged, last.data...), first.data...)
	return concat(concat(lrest, newLeaf(newChunk(merged))), rrest)
}

// Snapshot is an immutable view of a tree at one version.
type Snapshot struct {
	root    *node
	version Version
}

// Version returns the snapshot's version.
func (s Snapshot) Version() Version {
	return s.version
}

// Len returns the logical length in bytes.
func (s Snapshot) Len() int64 {
	return size(s.root)
}

// Newlines returns the number of newline bytes.
func (s Snapshot) Newlines() int64 {
	if s.root == nil {
		return 0
	}
	return s.root.lines
}

// Read returns a copy of bytes [start, end).
func (s Snapshot) Read(start, end int64) ([]byte, error) {
	n := s.Len()
	if start < 0 || end < start || end > n {
		return nil, rangeErr("read", start, end, n)
	}
	return s.AppendRange(make([]byte, 0, end-start), start, end), nil
}

// AppendRange appends bytes [start, end) to dst. The range must be valid.
func (s Snapshot) AppendRange(dst []byte, start, end int64) []byte {
	if s.root == nil {
		return dst
	}
	return s.root.appendRange(dst, start, end)
}

// Runs calls fn for every chunk overlapping [start, end), clipped to the
// range, in offset order. gap reports a run of unallocated zero bytes.
func (s Snapshot) Runs(start, end int64, fn func(off, n int64, gap bool)) {
	if s.root == nil || start >= end {
		return
	}
	s.root.runs(0, start, end, fn)
}

// Bytes returns the full content. Use sparingly for large snapshots.
func (s Snapshot) Bytes() []byte {
	return s.AppendRange(make([]byte, 0, s.Len()), 0, s.Len())
}

// String returns the full content as a string.
func (s Snapshot) String() string {
	return string(s.Bytes())
}

// ByteAt returns the byte at offset.
func (s Snapshot) ByteAt(offset int64) (byte, bool) {
	if offset < 0 || offset >= s.Len() {
		return 0, false
	}
	return s.root.byteAt(offset), true
}

// LineStart returns the byte offset where 0-based line begins.
func (s Snapshot) LineStart(line int64) (int64, bool) {
	if line < 0 || line > s.Newlines() {
		return 0, false
	}
	if line == 0 {
		return 0, true
	}
	return s.root.lineStart(line), true
}

// LineOf returns the 0-based line containing offset, clamped to content.
func (s Snapshot) LineOf(offset int64) int64 {
	if s.root == nil || offset <= 0 {
		return 0
	}
	return s.root.newlinesBefore(min(offset, s.Len()))
}

// Equal reports whether two snapshots hold the same bytes.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.root == other.root {
		return true
	}
	if s.Len() != other.Len() {
		return false
	}
	a, b := s.Chunks(), other.Chunks()
	var abuf, bbuf []byte
	for {
		for len(abuf) == 0 && a.Next() {
			abuf = a.Bytes()
		}
		for len(bbuf) == 0 && b.Next() {
			bbuf = b.Bytes()
		}
		if len(abuf) == 0 || len(bbuf) == 0 {
			return len(abuf) == len(bbuf)
		}
		n := min(len(abuf), len(bbuf))
		if !bytes.Equal(abuf[:n], bbuf[:n]) {
			return false
		}
		abuf, bbuf = abuf[n:], bbuf[n:]
	}
}

// Height returns the tree height, zero for a single leaf.
func (s Snapshot) Height() int {
	return s.root.height()
}

// ChunkCount returns the number of leaves.
func (s Snapshot) ChunkCount() int {
	return weight(s.root)
}
