package lineindex

import (
	"bytes"
	"math/rand/v2"
)

// maxBlock bounds the number of line lengths stored in one tree node.
const maxBlock = 128

type node struct {
	left, right *node
	prio        uint64
	lens        []int64

	count int   // lines in subtree
	bytes int64 // bytes in subtree
}

func newNode(lens []int64) *node {
	n := &node{prio: rand.Uint64(), lens: lens}
	n.update()
	return n
}

func (n *node) update() {
	n.count = len(n.lens)
	n.bytes = 0
	for _, l := range n.lens {
		n.bytes += l
	}
	if n.left != nil {
		n.count += n.left.count
		n.bytes += n.left.bytes
	}
	if n.right != nil {
		n.count += n.right.count
		n.bytes += n.right.bytes
	}
}

func count(n *node) int {
	if n == nil {
		return 0
	}
	return n.count
}

func merge(a, b *node) *node {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.prio > b.prio:
		a.right = merge(a.right, b)
		a.update()
		return a
	}
	b.left = merge(a, b.left)
	b.update()
	return b
}

// split returns the first k lines and the rest.
func split(n *node, k int) (*node, *node) {
	if n == nil {
		return nil, nil
	}
	lc := count(n.left)
	if k <= lc {
		a, b := split(n.left, k)
		n.left = b
		n.update()
		return a, n
	}
	k -= lc
	if k >= len(n.lens) {
		a, b := split(n.right, k-len(n.lens))
		n.right = a
		n.update()
		return n, b
	}
	tail := newNode(append([]int64(nil), n.lens[k:]...))
	n.lens = n.lens[:k:k]
	r := merge(tail, n.right)
	n.right = nil
	n.update()
	return n, r
}

func fromLens(lens []int64) *node {
	var root *node
	for len(lens) > 0 {
		k := min(len(lens), maxBlock)
		root = merge(root, newNode(append([]int64(nil), lens[:k]...)))
		lens = lens[k:]
	}
	return root
}

// Index is an offset/line index over one version of content. It is not
// safe for concurrent mutation.
type Index struct {
	root *node
}

// New returns the index of empty content: a single empty line.
func New() *Index {
	return &Index{root: newNode([]int64{0})}
}

// FromBytes indexes data.
func FromBytes(data []byte) *Index {
	var b Builder
	_, _ = b.Write(data)
	return b.Build()
}

// Len returns the total indexed bytes.
func (x *Index) Len() int64 {
	return x.root.bytes
}

// LineCount returns the number of lines, which is one more than the number
// of newlines.
func (x *Index) LineCount() int {
	return x.root.count
}

// LineOf returns the 0-based line containing offset. Offsets past the end
// map to the last line; negative offsets map to line 0.
func (x *Index) LineOf(offset int64) int {
	if offset <= 0 {
		return 0
	}
	n, base := x.root, 0
	for n != nil {
		if n.left != nil && offset < n.left.bytes {
			n = n.left
			continue
		}
		if n.left != nil {
			offset -= n.left.bytes
			base += n.left.count
		}
		for i, l := range n.lens {
			if offset < l {
				return base + i
			}
			offset -= l
		}
		base += len(n.lens)
		n = n.right
	}
	return x.root.count - 1
}

// ByteOf returns the offset where line starts.
func (x *Index) ByteOf(line int) (int64, bool) {
	if line < 0 || line >= x.root.count {
		return 0, false
	}
	start, _ := x.locate(line)
	return start, true
}

// LineLen returns the byte length of line including its newline.
func (x *Index) LineLen(line int) (int64, bool) {
	if line < 0 || line >= x.root.count {
		return 0, false
	}
	_, l := x.locate(line)
	return l, true
}

// locate returns the start offset and length of an existing line.
func (x *Index) locate(line int) (int64, int64) {
	var start int64
	n := x.root
	for {
		lc := count(n.left)
		if line < lc {
			n = n.left
			continue
		}
		if n.left != nil {
			start += n.left.bytes
		}
		line -= lc
		if line < len(n.lens) {
			for _, l := range n.lens[:line] {
				start += l
			}
			return start, n.lens[line]
		}
		for _, l := range n.lens {
			start += l
		}
		line -= len(n.lens)
		n = n.right
	}
}

// adjust adds delta to the length of an existing line in place.
func (x *Index) adjust(line int, delta int64) {
	var walk func(n *node, line int)
	walk = func(n *node, line int) {
		lc := count(n.left)
		switch {
		case line < lc:
			walk(n.left, line)
		case line-lc < len(n.lens):
			n.lens[line-lc] += delta
		default:
			walk(n.right, line-lc-len(n.lens))
		}
		n.bytes += delta
	}
	walk(x.root, line)
}

// splice replaces count lines starting at first with lens.
func (x *Index) splice(first, count int, lens []int64) {
	l, rest := split(x.root, first)
	_, r := split(rest, count)
	x.root = merge(merge(l, fromLens(lens)), r)
}

// Insert records that data was inserted at offset.
func (x *Index) Insert(offset int64, data []byte) {
	if len(data) == 0 {
		return
	}
	line := x.LineOf(offset)
	k := bytes.Count(data, newline)
	if k == 0 {
		x.adjust(line, int64(len(data)))
		return
	}
	start, old := x.locate(line)
	col := offset - start

	lens := make([]int64, 0, k+1)
	rest := data
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		lens = append(lens, int64(i)+1)
		rest = rest[i+1:]
	}
	lens[0] += col
	lens = append(lens, int64(len(rest))+old-col)
	x.splice(line, 1, lens)
}

// InsertBlank records that n bytes containing no newline were inserted at
// offset.
func (x *Index) InsertBlank(offset, n int64) {
	if n > 0 {
		x.adjust(x.LineOf(offset), n)
	}
}

// Delete records that bytes [start, end) were removed.
func (x *Index) Delete(start, end int64) {
	if end <= start {
		return
	}
	a, b := x.LineOf(start), x.LineOf(end)
	if a == b {
		x.adjust(a, start-end)
		return
	}
	sa, _ := x.locate(a)
	sb, lb := x.locate(b)
	merged := (start - sa) + (sb + lb - end)
	x.splice(a, b-a+1, []int64{merged})
}

var newline = []byte{'\n'}

// Builder accumulates line lengths from a stream of content.
type Builder struct {
	lens []int64
	cur  int64
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	rest := p
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			b.cur += int64(len(rest))
			return len(p), nil
		}
		b.lens = append(b.lens, b.cur+int64(i)+1)
		b.cur = 0
		rest = rest[i+1:]
	}
}

// Build returns the index and resets the builder.
func (b *Builder) Build() *Index {
	lens := append(b.lens, b.cur)
	b.lens, b.cur = nil, 0
	return &Index{root: fromLens(lens)}
}
