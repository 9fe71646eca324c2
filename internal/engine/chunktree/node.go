package chunktree

// Balance parameters for the weight-balanced discipline. Weight is the number
// of leaves under a node; siblings may differ by at most a factor of delta,
// and ratio picks between single and double rotations.
const (
	delta = 3
	ratio = 2
)

// node is an immutable tree node. Leaves have nil children and carry a chunk;
// internal nodes always have two non-nil children.
type node struct {
	left, right *node
	leaf        chunk

	size   int64 // total bytes
	lines  int64 // total newlines
	weight int   // leaf count
}

func newLeaf(c chunk) *node {
	return &node{leaf: c, size: c.n, lines: c.lines, weight: 1}
}

// join creates an internal node without rebalancing.
func join(l, r *node) *node {
	return &node{
		left:   l,
		right:  r,
		size:   l.size + r.size,
		lines:  l.lines + r.lines,
		weight: l.weight + r.weight,
	}
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

func weight(n *node) int {
	if n == nil {
		return 0
	}
	return n.weight
}

func size(n *node) int64 {
	if n == nil {
		return 0
	}
	return n.size
}

// balance joins l and r, rotating once if one side outweighs the other.
// l and r must each be balanced and differ from balance by at most one
// step, which holds for every caller in this file.
func balance(l, r *node) *node {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	}
	wl, wr := l.weight, r.weight
	if wl+wr <= 2 {
		return join(l, r)
	}
	if wr > delta*wl {
		if weight(r.left) < ratio*weight(r.right) {
			return join(join(l, r.left), r.right)
		}
		rl := r.left
		return join(join(l, rl.left), join(rl.right, r.right))
	}
	if wl > delta*wr {
		if weight(l.right) < ratio*weight(l.left) {
			return join(l.left, join(l.right, r))
		}
		lr := l.right
		return join(join(l.left, lr.left), join(lr.right, r))
	}
	return join(l, r)
}

// concat joins two trees whose leaves are in order. The recursion descends
// the spine of the heavier tree, so the cost is proportional to the height
// difference.
func concat(l, r *node) *node {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	case delta*l.weight < r.weight:
		return balance(concat(l, r.left), r.right)
	case delta*r.weight < l.weight:
		return balance(l.left, concat(l.right, r))
	}
	return join(l, r)
}

// split divides n at byte offset into two trees. 0 <= offset <= size(n).
func split(n *node, offset int64) (*node, *node) {
	switch {
	case n == nil:
		return nil, nil
	case offset <= 0:
		return nil, n
	case offset >= n.size:
		return n, nil
	case n.isLeaf():
		a, b := n.leaf.split(offset)
		return newLeaf(a), newLeaf(b)
	}
	ls := n.left.size
	switch {
	case offset < ls:
		a, b := split(n.left, offset)
		return a, concat(b, n.right)
	case offset > ls:
		a, b := split(n.right, offset-ls)
		return concat(n.left, a), b
	}
	return n.left, n.right
}

// popFirst removes the leftmost leaf.
func popFirst(n *node) (*node, chunk) {
	if n.isLeaf() {
		return nil, n.leaf
	}
	rest, c := popFirst(n.left)
	return concat(rest, n.right), c
}

// popLast removes the rightmost leaf.
func popLast(n *node) (*node, chunk) {
	if n.isLeaf() {
		return nil, n.leaf
	}
	rest, c := popLast(n.right)
	return concat(n.left, rest), c
}

// build creates a perfectly balanced tree over chunks.
func build(chunks []chunk) *node {
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		return newLeaf(chunks[0])
	}
	mid := len(chunks) / 2
	return join(build(chunks[:mid]), build(chunks[mid:]))
}

// appendRange appends bytes [start, end) of n to dst.
func (n *node) appendRange(dst []byte, start, end int64) []byte {
	if start >= end {
		return dst
	}
	if n.isLeaf() {
		return n.leaf.appendRange(dst, start, end)
	}
	ls := n.left.size
	if start < ls {
		dst = n.left.appendRange(dst, start, min(end, ls))
	}
	if end > ls {
		dst = n.right.appendRange(dst, max(start-ls, 0), end-ls)
	}
	return dst
}

func (n *node) runs(base, start, end int64, fn func(off, n int64, gap bool)) {
	if n.isLeaf() {
		lo, hi := max(start, base), min(end, base+n.leaf.n)
		if lo < hi {
			fn(lo, hi-lo, n.leaf.isGap())
		}
		return
	}
	mid := base + n.left.size
	if start < mid {
		n.left.runs(base, start, end, fn)
	}
	if end > mid {
		n.right.runs(mid, start, end, fn)
	}
}

func (n *node) byteAt(offset int64) byte {
	for !n.isLeaf() {
		if offset < n.left.size {
			n = n.left
		} else {
			offset -= n.left.size
			n = n.right
		}
	}
	return n.leaf.byteAt(offset)
}

// lineStart returns the offset just past the k-th newline, k >= 1.
func (n *node) lineStart(k int64) int64 {
	var base int64
	for !n.isLeaf() {
		if k <= n.left.lines {
			n = n.left
		} else {
			k -= n.left.lines
			base += n.left.size
			n = n.right
		}
	}
	return base + n.leaf.nthNewline(k)
}

// newlinesBefore counts newlines in [0, offset).
func (n *node) newlinesBefore(offset int64) int64 {
	var count int64
	for !n.isLeaf() {
		if offset < n.left.size {
			n = n.left
		} else {
			offset -= n.left.size
			count += n.left.lines
			n = n.right
		}
	}
	return count + n.leaf.countNewlines(offset)
}

func (n *node) height() int {
	if n == nil || n.isLeaf() {
		return 0
	}
	return 1 + max(n.left.height(), n.right.height())
}
