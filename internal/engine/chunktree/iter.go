package chunktree

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// ChunkIterator walks the chunks of a snapshot in order. Gap chunks are
// yielded as zero-filled segments of bounded size so a large gap is never
// materialized at once.
type ChunkIterator struct {
	stack  []*node
	gap    int64 // remaining bytes of the gap being yielded
	cur    []byte
	offset int64
	next   int64
}

// Chunks returns an iterator over the snapshot's content.
func (s Snapshot) Chunks() *ChunkIterator {
	it := &ChunkIterator{stack: make([]*node, 0, 32)}
	if s.root != nil {
		it.stack = append(it.stack, s.root)
	}
	return it
}

// Next advances to the next segment, returning false at the end.
func (it *ChunkIterator) Next() bool {
	it.offset = it.next
	if it.gap > 0 {
		it.yieldGap()
		return true
	}
	for len(it.stack) > 0 {
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		if !n.isLeaf() {
			it.stack = append(it.stack, n.right, n.left)
			continue
		}
		if n.leaf.n == 0 {
			continue
		}
		if n.leaf.isGap() {
			it.gap = n.leaf.n
			it.yieldGap()
			return true
		}
		it.cur = n.leaf.data
		it.next += n.leaf.n
		return true
	}
	it.cur = nil
	return false
}

func (it *ChunkIterator) yieldGap() {
	k := min(it.gap, int64(len(zeros)))
	it.cur = zeros[:k]
	it.gap -= k
	it.next += k
}

// Bytes returns the current segment. The slice is shared and must not be
// modified.
func (it *ChunkIterator) Bytes() []byte {
	return it.cur
}

// Offset returns the absolute offset of the current segment.
func (it *ChunkIterator) Offset() int64 {
	return it.offset
}

// WriteTo streams the snapshot's content to w.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	var total int64
	it := s.Chunks()
	for it.Next() {
		n, err := w.Write(it.Bytes())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Hash returns the xxhash64 fingerprint of the content. Two snapshots with
// the same bytes hash equally regardless of chunk layout.
func (s Snapshot) Hash() uint64 {
	d := xxhash.New()
	_, _ = s.WriteTo(d)
	return d.Sum64()
}
