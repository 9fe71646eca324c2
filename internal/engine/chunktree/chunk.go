package chunktree

import "bytes"

// Chunk size bounds.
const (
	// DefaultChunkSize is the maximum bytes per data chunk unless configured.
	DefaultChunkSize = 4096

	// MinChunkSize is the smallest chunk size a Config accepts.
	MinChunkSize = 64
)

// chunk is an immutable leaf payload. A chunk with nil data and a positive
// length is a gap: a run of zero bytes that is never allocated.
type chunk struct {
	data  []byte
	n     int64
	lines int64
}

// newChunk wraps data without copying. Callers must not retain data.
func newChunk(data []byte) chunk {
	return chunk{
		data:  data,
		n:     int64(len(data)),
		lines: int64(bytes.Count(data, newline)),
	}
}

func gapChunk(n int64) chunk {
	return chunk{n: n}
}

var newline = []byte{'\n'}

func (c chunk) isGap() bool {
	return c.data == nil && c.n > 0
}

// split divides the chunk at offset. Both halves share the original backing
// array; chunks are never written after construction so this is safe.
func (c chunk) split(offset int64) (chunk, chunk) {
	if c.isGap() {
		return gapChunk(offset), gapChunk(c.n - offset)
	}
	return newChunk(c.data[:offset:offset]), newChunk(c.data[offset:])
}

// appendRange appends bytes [start, end) of the chunk to dst, materializing
// zeros for gaps.
func (c chunk) appendRange(dst []byte, start, end int64) []byte {
	if !c.isGap() {
		return append(dst, c.data[start:end]...)
	}
	n := int(end - start)
	for n > 0 {
		z := min(n, len(zeros))
		dst = append(dst, zeros[:z]...)
		n -= z
	}
	return dst
}

var zeros [4096]byte

// byteAt returns the byte at offset within the chunk.
func (c chunk) byteAt(offset int64) byte {
	if c.isGap() {
		return 0
	}
	return c.data[offset]
}

// nthNewline returns the offset just past the k-th newline (1-based) in the
// chunk.
func (c chunk) nthNewline(k int64) int64 {
	var seen int64
	for i, b := range c.data {
		if b == '\n' {
			seen++
			if seen == k {
				return int64(i) + 1
			}
		}
	}
	return c.n
}

// countNewlines counts newlines in the first offset bytes.
func (c chunk) countNewlines(offset int64) int64 {
	if c.isGap() {
		return 0
	}
	return int64(bytes.Count(c.data[:offset], newline))
}

// splitData cuts data into chunks of at most size bytes. Each chunk gets a
// private copy so callers may reuse data.
func splitData(data []byte, size int) []chunk {
	if len(data) == 0 {
		return nil
	}
	owned := bytes.Clone(data)
	chunks := make([]chunk, 0, (len(owned)+size-1)/size)
	for len(owned) > 0 {
		n := min(size, len(owned))
		chunks = append(chunks, newChunk(owned[:n:n]))
		owned = owned[n:]
	}
	return chunks
}
