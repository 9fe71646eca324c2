package engine

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dshills/tessera/internal/engine/cursor"
	"github.com/dshills/tessera/internal/engine/editlog"
)

// Iterator reads buffer content sequentially while other goroutines edit
// it. It holds a window of bytes read at a tracked version. Before each
// read it replays the edits made since then: its position moves like a
// cursor, and the window survives edits that do not touch it.
//
// An Iterator is safe for concurrent use, though callers normally own one
// per reader.
type Iterator struct {
	vb   *VirtualBuffer
	id   uint64
	size int

	// tracked is read by GC without holding mu.
	tracked atomic.Uint64

	mu       sync.Mutex
	pos      int64
	win      []byte
	winStart int64
	closed   bool
}

func newIterator(vb *VirtualBuffer, id uint64, pos int64, v Version) *Iterator {
	it := &Iterator{vb: vb, id: id, size: vb.opts.window, pos: pos}
	it.tracked.Store(uint64(v))
	return it
}

// Offset returns the position of the next byte to be read.
func (it *Iterator) Offset() int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.sync()
	return it.pos
}

// Version returns the content version the iterator last synchronized to.
func (it *Iterator) Version() Version {
	return it.trackedVersion()
}

func (it *Iterator) trackedVersion() Version {
	return Version(it.tracked.Load())
}

// Seek moves the iterator to offset, clamped to the content.
func (it *Iterator) Seek(offset int64) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.sync()
	it.pos = min(max(offset, 0), it.vb.Len())
}

// Next returns the next byte. ok is false at the end of content or after
// Close.
func (it *Iterator) Next() (b byte, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	seg, err := it.segment()
	if err != nil || len(seg) == 0 {
		return 0, false
	}
	it.pos++
	return seg[0], true
}

// Read implements io.Reader.
func (it *Iterator) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	seg, err := it.segment()
	if err != nil {
		return 0, err
	}
	if len(seg) == 0 {
		return 0, io.EOF
	}
	n := copy(p, seg)
	it.pos += int64(n)
	return n, nil
}

// NextLine returns the content from the current position up to the next
// newline, which is consumed but not returned. ok is false once the end
// of content has been reached.
func (it *Iterator) NextLine() (line []byte, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for {
		seg, err := it.segment()
		if err != nil {
			return line, false
		}
		if len(seg) == 0 {
			return line, line != nil
		}
		if i := bytes.IndexByte(seg, '\n'); i >= 0 {
			line = append(line, seg[:i]...)
			it.pos += int64(i) + 1
			if line == nil {
				line = []byte{}
			}
			return line, true
		}
		line = append(line, seg...)
		it.pos += int64(len(seg))
	}
}

// Close releases the iterator. A closed iterator yields no more content.
func (it *Iterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return nil
	}
	it.closed = true
	it.win = nil
	it.vb.unregisterIterator(it.id)
	return nil
}

// segment synchronizes and returns the window bytes from the current
// position, filling a new window when needed. It returns an empty slice at
// the end of content.
func (it *Iterator) segment() ([]byte, error) {
	if it.closed {
		return nil, nil
	}
	it.sync()
	if it.win != nil && it.pos >= it.winStart && it.pos < it.winStart+int64(len(it.win)) {
		return it.win[it.pos-it.winStart:], nil
	}
	if err := it.fill(); err != nil {
		return nil, err
	}
	return it.win, nil
}

// fill reads a window at the current position. When the buffer changes
// between synchronizing and reading, it synchronizes again and retries.
func (it *Iterator) fill() error {
	for {
		v := it.trackedVersion()
		data, ok, err := it.vb.readWindowAt(v, it.pos, it.size)
		if err != nil {
			return err
		}
		if ok {
			it.win = data
			it.winStart = it.pos
			return nil
		}
		it.sync()
	}
}

// sync replays the edits between the tracked version and the current one.
func (it *Iterator) sync() {
	cur := it.vb.Version()
	from := it.trackedVersion()
	if cur == from {
		return
	}
	evs, err := it.vb.changesBetween(from, cur)
	if errors.Is(err, errStaleIterator) {
		it.win = nil
		it.pos = min(it.pos, it.vb.Len())
		it.tracked.Store(uint64(cur))
		return
	}
	for _, ev := range evs {
		it.apply(ev)
	}
	it.tracked.Store(uint64(cur))
}

// apply moves the position and window for one edit. Edits after the window
// leave it alone, edits wholly before it shift it, and anything else drops
// it.
func (it *Iterator) apply(ev editlog.Event) {
	var e cursor.Edit
	if ev.Kind == editlog.Insert {
		e = cursor.InsertEdit(ev.Offset, ev.Len())
	} else {
		e = cursor.DeleteEdit(ev.Offset, ev.End())
	}

	if it.win != nil {
		winEnd := it.winStart + int64(len(it.win))
		switch {
		case ev.Offset >= winEnd:
		case ev.Kind == editlog.Insert && ev.Offset <= it.winStart:
			it.winStart += ev.Len()
		case ev.Kind == editlog.Delete && ev.End() <= it.winStart:
			it.winStart -= ev.Len()
		default:
			it.win = nil
		}
	}
	it.pos = cursor.TransformOffset(it.pos, e)
}
