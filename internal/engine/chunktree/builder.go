package chunktree

import "io"

// Builder accumulates content and builds a balanced tree in one pass. It is
// the bulk-load path for opening files.
type Builder struct {
	size   int
	chunks []chunk
	buf    []byte
	total  int64
}

// NewBuilder creates a builder producing chunks of at most chunkSize bytes.
func NewBuilder(chunkSize int) *Builder {
	if chunkSize < MinChunkSize {
		chunkSize = DefaultChunkSize
	}
	return &Builder{size: chunkSize, chunks: make([]chunk, 0, 64)}
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.total += int64(len(p))
	rest := p
	for len(rest) > 0 {
		if b.buf == nil {
			b.buf = make([]byte, 0, b.size)
		}
		n := min(b.size-len(b.buf), len(rest))
		b.buf = append(b.buf, rest[:n]...)
		rest = rest[n:]
		if len(b.buf) == b.size {
			b.flush()
		}
	}
	return len(p), nil
}

// WriteGap appends a run of n zero bytes without allocating it.
func (b *Builder) WriteGap(n int64) {
	if n <= 0 {
		return
	}
	b.flush()
	b.total += n
	b.chunks = append(b.chunks, gapChunk(n))
}

// ReadFrom implements io.ReaderFrom.
func (b *Builder) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = b.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Len returns the number of bytes written.
func (b *Builder) Len() int64 {
	return b.total
}

func (b *Builder) flush() {
	if len(b.buf) == 0 {
		return
	}
	b.chunks = append(b.chunks, newChunk(b.buf))
	b.buf = nil
}

// Build returns the accumulated content as a detached snapshot, suitable
// for Tree.Replace, and resets the builder.
func (b *Builder) Build() Snapshot {
	b.flush()
	root := build(b.chunks)
	b.chunks = make([]chunk, 0, 64)
	b.total = 0
	return Snapshot{root: root}
}

// FromReader reads r to EOF into a new tree at version zero.
func FromReader(r io.Reader, opts ...Option) (*Tree, error) {
	t := New(opts...)
	b := NewBuilder(t.cfg.ChunkSize)
	if _, err := b.ReadFrom(r); err != nil {
		return nil, err
	}
	t.cur.root = b.Build().root
	t.retained[0] = t.cur.root
	return t, nil
}

// SnapshotOf builds a detached snapshot from data, mostly for tests and
// replay bases.
func SnapshotOf(data []byte) Snapshot {
	return Snapshot{root: build(splitData(data, DefaultChunkSize))}
}
