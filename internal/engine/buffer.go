package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dshills/tessera/internal/engine/cache"
	"github.com/dshills/tessera/internal/engine/chunktree"
	"github.com/dshills/tessera/internal/engine/cursor"
	"github.com/dshills/tessera/internal/engine/editlog"
	"github.com/dshills/tessera/internal/engine/lineindex"
)

// Version identifies one state of the buffer content.
type Version = chunktree.Version

// Cause says how a change came about.
type Cause uint8

const (
	// CauseEdit is a direct edit.
	CauseEdit Cause = iota
	// CauseUndo is an edit replayed by Undo.
	CauseUndo
	// CauseRedo is an edit replayed by Redo.
	CauseRedo
)

func (c Cause) String() string {
	switch c {
	case CauseEdit:
		return "edit"
	case CauseUndo:
		return "undo"
	case CauseRedo:
		return "redo"
	}
	return fmt.Sprintf("cause(%d)", c)
}

// Change describes one applied edit to subscribers. Start and End locate
// the affected range in the content as it was before the edit, so a
// language server can be sent an incremental update.
type Change struct {
	Event editlog.Event
	Cause Cause

	Start      Point
	End        Point
	StartUTF16 PointUTF16
	EndUTF16   PointUTF16
}

// maxUTF16Scan bounds how far back a UTF-16 column is computed from the
// line start. Longer prefixes are reported in bytes.
const maxUTF16Scan = 1 << 20

// VirtualBuffer is the editing façade. It combines the chunk tree, the
// edit log, the block cache, the line index and the cursor set behind one
// lock, and keeps them consistent across every mutation.
//
// All methods are safe for concurrent use. Reads share the lock and run in
// parallel; mutations are serialized.
type VirtualBuffer struct {
	mu sync.RWMutex

	store   Storage
	log     *editlog.Log
	cache   *cache.Cache
	lines   *lineindex.Index
	cursors *cursor.Set

	iters    map[uint64]*Iterator
	nextIter uint64

	subs    map[uint64]func(Change)
	nextSub uint64
	pending []Change

	// version mirrors store.Version for lock-free polling by iterators.
	version atomic.Uint64

	opts options
}

// New creates an empty buffer.
func New(opts ...Option) (*VirtualBuffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	store := o.storage
	if store == nil {
		store = chunktree.New(
			chunktree.WithChunkSize(o.chunkSize),
			chunktree.WithMaxGap(o.maxGap),
		)
	}
	c, err := cache.New(o.cacheBudget, o.cacheBlock)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	var lb lineindex.Builder
	if _, err := store.Snapshot().WriteTo(&lb); err != nil {
		return nil, fmt.Errorf("engine: index content: %w", err)
	}

	vb := &VirtualBuffer{
		store:   store,
		log:     editlog.New(store.Version()),
		cache:   c,
		lines:   lb.Build(),
		cursors: cursor.NewSet(),
		iters:   make(map[uint64]*Iterator),
		subs:    make(map[uint64]func(Change)),
		opts:    o,
	}
	vb.cursors.Add(cursor.New(0))
	vb.version.Store(uint64(store.Version()))
	return vb, nil
}

// NewFromReader creates a buffer holding the content of r.
func NewFromReader(r io.Reader, opts ...Option) (*VirtualBuffer, error) {
	vb, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := vb.load(r); err != nil {
		return nil, err
	}
	return vb, nil
}

// NewFromString creates a buffer holding s.
func NewFromString(s string, opts ...Option) (*VirtualBuffer, error) {
	return NewFromReader(bytes.NewReader([]byte(s)), opts...)
}

// Len returns the content length in bytes.
func (vb *VirtualBuffer) Len() int64 {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.store.Len()
}

// Version returns the current content version.
func (vb *VirtualBuffer) Version() Version {
	return Version(vb.version.Load())
}

// Snapshot returns an immutable view of the current content.
func (vb *VirtualBuffer) Snapshot() chunktree.Snapshot {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.store.Snapshot()
}

// ReadOnly reports whether mutations are refused.
func (vb *VirtualBuffer) ReadOnly() bool {
	return vb.opts.readOnly
}

// CacheStats returns the block cache counters.
func (vb *VirtualBuffer) CacheStats() cache.Stats {
	return vb.cache.Stats()
}

// Cache returns the block cache, for metrics registration.
func (vb *VirtualBuffer) Cache() *cache.Cache {
	return vb.cache
}

// Read returns bytes [start, end) of the current content.
func (vb *VirtualBuffer) Read(start, end int64) ([]byte, error) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	start, end, err := vb.clampRange("read", start, end)
	if err != nil {
		return nil, err
	}
	return vb.readLocked(start, end)
}

// String returns the whole content.
func (vb *VirtualBuffer) String() string {
	return vb.Snapshot().String()
}

// readLocked assembles [start, end) from cache blocks of the current
// version. Ranges too large to cache go straight to the store.
func (vb *VirtualBuffer) readLocked(start, end int64) ([]byte, error) {
	if end <= start {
		return []byte{}, nil
	}
	if end-start > vb.cache.Budget()/2 {
		return vb.store.Read(start, end)
	}
	bs := vb.cache.BlockSize()
	v := vb.store.Version()
	n := vb.store.Len()

	out := make([]byte, 0, end-start)
	for b := start / bs; b*bs < end; b++ {
		lo, hi := b*bs, min(b*bs+bs, n)
		blk, err := vb.cache.GetOrMaterialize(cache.Key{Version: v, Block: b}, func() ([]byte, error) {
			return vb.store.Read(lo, hi)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, blk[max(start, lo)-lo:min(end, hi)-lo]...)
	}
	return out, nil
}

// clampRange validates [start, end) against the content, clamping unless
// the buffer is strict.
func (vb *VirtualBuffer) clampRange(op string, start, end int64) (int64, int64, error) {
	n := vb.store.Len()
	if start < 0 || end > n || start > end {
		if vb.opts.strict {
			return 0, 0, &chunktree.RangeError{Op: op, Start: start, End: end, Len: n}
		}
		start = min(max(start, 0), n)
		end = min(max(end, start), n)
	}
	return start, end, nil
}

// Insert inserts data at offset and returns the new version. Offsets past
// the end are clamped unless the buffer permits sparse gaps, in which case
// the space between the end and offset is filled with zero bytes.
func (vb *VirtualBuffer) Insert(offset int64, data []byte) (Version, error) {
	return vb.mutate(func() error {
		return vb.insertLocked(offset, data)
	})
}

// InsertString inserts s at offset.
func (vb *VirtualBuffer) InsertString(offset int64, s string) (Version, error) {
	return vb.Insert(offset, []byte(s))
}

// Delete removes bytes [start, end) and returns the new version.
func (vb *VirtualBuffer) Delete(start, end int64) (Version, error) {
	return vb.mutate(func() error {
		return vb.deleteLocked(start, end)
	})
}

// Replace replaces bytes [start, end) with data as one undo group.
func (vb *VirtualBuffer) Replace(start, end int64, data []byte) (Version, error) {
	return vb.mutate(func() error {
		vb.log.BeginGroup()
		defer vb.log.EndGroup()
		s, _, err := vb.clampRange("replace", start, end)
		if err != nil {
			return err
		}
		if err := vb.deleteLocked(start, end); err != nil {
			return err
		}
		return vb.insertLocked(s, data)
	})
}

// BeginGroup starts an undo group. Edits until the matching EndGroup undo
// and redo together. Groups nest.
func (vb *VirtualBuffer) BeginGroup() {
	vb.mu.Lock()
	vb.log.BeginGroup()
	vb.mu.Unlock()
}

// EndGroup closes the innermost undo group.
func (vb *VirtualBuffer) EndGroup() {
	vb.mu.Lock()
	vb.log.EndGroup()
	vb.mu.Unlock()
}

// Undo reverts the most recent undo group. It returns false when there is
// nothing to undo.
func (vb *VirtualBuffer) Undo() (Version, bool, error) {
	return vb.step(vb.log.Undo, CauseUndo)
}

// Redo reapplies the most recently undone group. It returns false when
// there is nothing to redo.
func (vb *VirtualBuffer) Redo() (Version, bool, error) {
	return vb.step(vb.log.Redo, CauseRedo)
}

// CanUndo reports whether Undo would change the content.
func (vb *VirtualBuffer) CanUndo() bool {
	return vb.log.CanUndo()
}

// CanRedo reports whether Redo would change the content.
func (vb *VirtualBuffer) CanRedo() bool {
	return vb.log.CanRedo()
}

func (vb *VirtualBuffer) step(next func() (editlog.Step, bool), cause Cause) (Version, bool, error) {
	var ok bool
	v, err := vb.mutate(func() error {
		var s editlog.Step
		s, ok = next()
		if !ok {
			return nil
		}
		for _, ev := range s.Events {
			if err := vb.applyLocked(ev, cause); err != nil {
				return err
			}
		}
		// Prefer the retained root for the target version; otherwise the
		// replayed content takes over its label.
		if !vb.store.Restore(s.Version) {
			vb.store.Retag(s.Version)
		}
		vb.version.Store(uint64(s.Version))
		return nil
	})
	return v, ok, err
}

// mutate runs fn under the write lock and delivers the changes it queued
// once the lock is released.
func (vb *VirtualBuffer) mutate(fn func() error) (Version, error) {
	vb.mu.Lock()
	if vb.opts.readOnly {
		vb.mu.Unlock()
		return vb.Version(), ErrReadOnly
	}
	err := fn()
	v := vb.store.Version()
	pending := vb.pending
	vb.pending = nil
	var subs []func(Change)
	if len(pending) > 0 {
		subs = make([]func(Change), 0, len(vb.subs))
		for _, fn := range vb.subs {
			subs = append(subs, fn)
		}
	}
	vb.mu.Unlock()

	for _, ch := range pending {
		for _, fn := range subs {
			fn(ch)
		}
	}
	return v, err
}

func (vb *VirtualBuffer) insertLocked(offset int64, data []byte) error {
	n := vb.store.Len()
	switch {
	case offset < 0 || offset > n+vb.opts.maxGap:
		if vb.opts.strict {
			return &chunktree.RangeError{Op: "insert", Start: offset, End: offset, Len: n}
		}
		offset = min(max(offset, 0), n)
	case offset > n:
		vb.log.BeginGroup()
		defer vb.log.EndGroup()
		gap := editlog.Event{Kind: editlog.Insert, Offset: n, Gap: offset - n}
		if err := vb.applyLocked(gap, CauseEdit); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		return nil
	}
	ev := editlog.Event{Kind: editlog.Insert, Offset: offset, Data: bytes.Clone(data)}
	return vb.applyLocked(ev, CauseEdit)
}

// deleteLocked removes [start, end). Sparse gaps inside the range are
// recorded by length only, so neither the delete nor its undo allocates
// them.
func (vb *VirtualBuffer) deleteLocked(start, end int64) error {
	start, end, err := vb.clampRange("delete", start, end)
	if err != nil || start == end {
		return err
	}
	type run struct {
		off, n int64
		gap    bool
	}
	var runs []run
	sparse := false
	vb.store.Snapshot().Runs(start, end, func(off, n int64, gap bool) {
		if k := len(runs) - 1; k >= 0 && !gap && !runs[k].gap {
			runs[k].n += n
			return
		}
		sparse = sparse || gap
		runs = append(runs, run{off: off, n: n, gap: gap})
	})
	if !sparse {
		removed, err := vb.store.Read(start, end)
		if err != nil {
			return err
		}
		return vb.applyLocked(editlog.Event{Kind: editlog.Delete, Offset: start, Data: removed}, CauseEdit)
	}

	vb.log.BeginGroup()
	defer vb.log.EndGroup()
	// Highest first, so the offsets of runs still to go stay valid.
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		ev := editlog.Event{Kind: editlog.Delete, Offset: r.off, Gap: r.n}
		if !r.gap {
			data, err := vb.store.Read(r.off, r.off+r.n)
			if err != nil {
				return err
			}
			ev = editlog.Event{Kind: editlog.Delete, Offset: r.off, Data: data}
		}
		if err := vb.applyLocked(ev, CauseEdit); err != nil {
			return err
		}
	}
	return nil
}

// applyLocked performs one event and brings every derived structure up to
// date: the store first, then the log, the cache, the line index and the
// cursors. Subscriber notifications are queued for mutate to deliver.
func (vb *VirtualBuffer) applyLocked(ev editlog.Event, cause Cause) error {
	var ch Change
	notify := len(vb.subs) > 0
	if notify {
		end := ev.Offset
		if ev.Kind == editlog.Delete {
			end = ev.End()
		}
		ch.Start, ch.StartUTF16 = vb.pointsLocked(ev.Offset)
		ch.End, ch.EndUTF16 = vb.pointsLocked(end)
	}

	before := vb.store.Version()
	after, err := ev.ApplyTo(vb.store)
	if err != nil {
		return err
	}
	if cause == CauseEdit {
		ev.Before, ev.After = before, after
		ev.Time = time.Now()
		vb.log.Append(ev)
		vb.version.Store(uint64(after))
	}
	vb.cache.InvalidateAll()

	var edit cursor.Edit
	switch {
	case ev.Kind == editlog.Delete:
		vb.lines.Delete(ev.Offset, ev.End())
		edit = cursor.DeleteEdit(ev.Offset, ev.End())
	case ev.Gap > 0:
		vb.lines.InsertBlank(ev.Offset, ev.Gap)
		edit = cursor.InsertEdit(ev.Offset, ev.Gap)
	default:
		vb.lines.Insert(ev.Offset, ev.Data)
		edit = cursor.InsertEdit(ev.Offset, ev.Len())
	}
	vb.cursors.Apply(edit)

	if notify {
		ch.Event = ev
		ch.Cause = cause
		vb.pending = append(vb.pending, ch)
	}
	return nil
}

// pointsLocked converts offset to byte and UTF-16 line/column positions.
func (vb *VirtualBuffer) pointsLocked(offset int64) (Point, PointUTF16) {
	line := vb.lines.LineOf(offset)
	start, _ := vb.lines.ByteOf(line)
	col := offset - start
	p := Point{Line: line, Column: int(col)}
	if col > maxUTF16Scan {
		return p, PointUTF16{Line: line, Column: int(col)}
	}
	prefix, err := vb.store.Read(start, offset)
	if err != nil {
		return p, PointUTF16{Line: line, Column: int(col)}
	}
	return p, PointUTF16{Line: line, Column: utf16Len(prefix)}
}

// Subscribe registers fn to receive every applied change, after the write
// lock is released. It returns a function that cancels the subscription.
func (vb *VirtualBuffer) Subscribe(fn func(Change)) (cancel func()) {
	vb.mu.Lock()
	id := vb.nextSub
	vb.nextSub++
	vb.subs[id] = fn
	vb.mu.Unlock()
	return func() {
		vb.mu.Lock()
		delete(vb.subs, id)
		vb.mu.Unlock()
	}
}

// Load replaces the content with r in one step. Edit history is discarded
// and the loaded content becomes the save point.
func (vb *VirtualBuffer) Load(r io.Reader) error {
	if vb.opts.readOnly {
		return ErrReadOnly
	}
	return vb.load(r)
}

func (vb *VirtualBuffer) load(r io.Reader) error {
	b := chunktree.NewBuilder(vb.store.Config().ChunkSize)
	var lb lineindex.Builder
	if _, err := io.Copy(io.MultiWriter(b, &lb), r); err != nil {
		return fmt.Errorf("engine: load: %w", err)
	}
	snap := b.Build()
	lines := lb.Build()

	vb.mu.Lock()
	v := vb.store.Replace(snap)
	vb.log.Rebase(v)
	vb.log.MarkSaved(v)
	vb.cache.InvalidateAll()
	vb.lines = lines
	vb.cursors.Clamp(0)
	vb.cursors.Dedup()
	vb.version.Store(uint64(v))
	vb.mu.Unlock()
	return nil
}

// WriteTo writes the current content to w.
func (vb *VirtualBuffer) WriteTo(w io.Writer) (int64, error) {
	return vb.Snapshot().WriteTo(w)
}

// MarkSaved records v as the version that matches persistent storage.
func (vb *VirtualBuffer) MarkSaved(v Version) {
	vb.log.MarkSaved(v)
}

// SavePoint returns the version last marked saved.
func (vb *VirtualBuffer) SavePoint() Version {
	return vb.log.SavePoint()
}

// Modified reports whether the content differs from the save point.
func (vb *VirtualBuffer) Modified() bool {
	return vb.log.Modified()
}

// GCStats reports what a collection pass released.
type GCStats struct {
	LowWater  Version
	Events    int
	Snapshots int
}

// GC releases edit-log history and retained snapshots no longer reachable
// by undo within the configured window. Versions still tracked by live
// iterators and the save point stay reachable.
func (vb *VirtualBuffer) GC() GCStats {
	vb.mu.Lock()
	defer vb.mu.Unlock()

	low := vb.log.Window(vb.opts.maxUndo)
	for _, it := range vb.iters {
		if v := it.trackedVersion(); v < low {
			low = v
		}
	}
	events := vb.log.GC(low)

	keep := make(map[Version]bool)
	for _, v := range vb.log.Versions() {
		keep[v] = true
	}
	keep[vb.log.SavePoint()] = true
	snaps := vb.store.Prune(func(v Version) bool { return keep[v] })

	return GCStats{LowWater: low, Events: events, Snapshots: snaps}
}

// HistoryLen returns the number of events in the edit log.
func (vb *VirtualBuffer) HistoryLen() int {
	return vb.log.Len()
}

// LineCount returns the number of lines. Content with n newlines has n+1
// lines.
func (vb *VirtualBuffer) LineCount() int {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.lines.LineCount()
}

// LineOf returns the 0-based line containing offset.
func (vb *VirtualBuffer) LineOf(offset int64) int {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.lines.LineOf(offset)
}

// ByteOfLine returns the offset where line starts.
func (vb *VirtualBuffer) ByteOfLine(line int) (int64, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.lines.ByteOf(line)
}

// Line returns the content of line without its newline.
func (vb *VirtualBuffer) Line(line int) ([]byte, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	start, end, ok := vb.lineBoundsLocked(line)
	if !ok {
		return nil, false
	}
	data, err := vb.readLocked(start, end)
	if err != nil {
		return nil, false
	}
	return data, true
}

// lineBoundsLocked returns the byte range of line excluding its newline.
func (vb *VirtualBuffer) lineBoundsLocked(line int) (int64, int64, bool) {
	start, ok := vb.lines.ByteOf(line)
	if !ok {
		return 0, 0, false
	}
	n, _ := vb.lines.LineLen(line)
	end := start + n
	if line < vb.lines.LineCount()-1 {
		end--
	}
	return start, end, true
}

// OffsetToPoint converts a byte offset to a line and byte column.
func (vb *VirtualBuffer) OffsetToPoint(offset int64) Point {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	offset = min(max(offset, 0), vb.store.Len())
	line := vb.lines.LineOf(offset)
	start, _ := vb.lines.ByteOf(line)
	return Point{Line: line, Column: int(offset - start)}
}

// PointToOffset converts a line and byte column to an offset. Columns past
// the end of the line clamp to the line end; lines past the end clamp to
// the end of content.
func (vb *VirtualBuffer) PointToOffset(p Point) int64 {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	if p.Line >= vb.lines.LineCount() {
		return vb.store.Len()
	}
	start, end, _ := vb.lineBoundsLocked(max(p.Line, 0))
	return start + min(int64(max(p.Column, 0)), end-start)
}

// OffsetToUTF16 converts a byte offset to a line and UTF-16 column.
func (vb *VirtualBuffer) OffsetToUTF16(offset int64) PointUTF16 {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	offset = min(max(offset, 0), vb.store.Len())
	_, p := vb.pointsLocked(offset)
	return p
}

// UTF16ToOffset converts a line and UTF-16 column to a byte offset,
// clamping like PointToOffset.
func (vb *VirtualBuffer) UTF16ToOffset(p PointUTF16) int64 {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	if p.Line >= vb.lines.LineCount() {
		return vb.store.Len()
	}
	start, end, _ := vb.lineBoundsLocked(max(p.Line, 0))
	line, err := vb.readLocked(start, end)
	if err != nil {
		return start
	}
	return start + int64(byteColumnFromUTF16(line, max(p.Column, 0)))
}

// AddCursor adds a cursor and returns its id.
func (vb *VirtualBuffer) AddCursor(c cursor.Cursor) cursor.ID {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.cursors.Add(c.Clamp(vb.store.Len()))
}

// RemoveCursor removes a cursor.
func (vb *VirtualBuffer) RemoveCursor(id cursor.ID) bool {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.cursors.Remove(id)
}

// SetCursor moves an existing cursor.
func (vb *VirtualBuffer) SetCursor(id cursor.ID, c cursor.Cursor) bool {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.cursors.Set(id, c.Clamp(vb.store.Len()))
}

// Cursor returns one cursor.
func (vb *VirtualBuffer) Cursor(id cursor.ID) (cursor.Cursor, bool) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.cursors.Get(id)
}

// Cursors returns every cursor in registration order.
func (vb *VirtualBuffer) Cursors() []cursor.Entry {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	return vb.cursors.All()
}

// CursorPositionsAfterEdit returns where offsets land after edits are
// applied in order, without touching the buffer.
func (vb *VirtualBuffer) CursorPositionsAfterEdit(offsets []int64, edits ...cursor.Edit) []int64 {
	return cursor.TransformAll(offsets, edits...)
}

// InsertAtCursors inserts data at every cursor as one undo group,
// replacing selections. Cursors are visited from the highest offset down so
// each insert leaves the positions still to be visited unchanged.
func (vb *VirtualBuffer) InsertAtCursors(data []byte) (Version, error) {
	return vb.eachCursor(func(c cursor.Cursor) (int64, error) {
		off := c.Offset
		if c.HasSelection() {
			start, end := c.Selection()
			if err := vb.deleteLocked(start, end); err != nil {
				return 0, err
			}
			off = start
		}
		if err := vb.insertLocked(off, data); err != nil {
			return 0, err
		}
		return off + int64(len(data)), nil
	})
}

// DeleteBackward deletes the selection or the rune before every cursor.
func (vb *VirtualBuffer) DeleteBackward() (Version, error) {
	return vb.eachCursor(func(c cursor.Cursor) (int64, error) {
		start, end := c.Selection()
		if !c.HasSelection() {
			if c.Offset == 0 {
				return 0, nil
			}
			prev, err := vb.store.Read(max(c.Offset-utf8.UTFMax, 0), c.Offset)
			if err != nil {
				return 0, err
			}
			_, size := utf8.DecodeLastRune(prev)
			start = c.Offset - int64(size)
		}
		return start, vb.deleteLocked(start, end)
	})
}

// DeleteForward deletes the selection or the rune after every cursor.
func (vb *VirtualBuffer) DeleteForward() (Version, error) {
	return vb.eachCursor(func(c cursor.Cursor) (int64, error) {
		start, end := c.Selection()
		if !c.HasSelection() {
			n := vb.store.Len()
			if c.Offset >= n {
				return c.Offset, nil
			}
			next, err := vb.store.Read(c.Offset, min(c.Offset+utf8.UTFMax, n))
			if err != nil {
				return 0, err
			}
			_, size := utf8.DecodeRune(next)
			end = c.Offset + int64(size)
		}
		return start, vb.deleteLocked(start, end)
	})
}

// DeleteSelections deletes every non-empty selection as one undo group.
// Cursors without a selection only shift with the deletes.
func (vb *VirtualBuffer) DeleteSelections() (Version, error) {
	return vb.eachCursor(func(c cursor.Cursor) (int64, error) {
		if !c.HasSelection() {
			return c.Offset, nil
		}
		start, end := c.Selection()
		return start, vb.deleteLocked(start, end)
	})
}

// SelectedText returns the text of every non-empty selection in offset
// order, joined by newlines. It is empty when nothing is selected.
func (vb *VirtualBuffer) SelectedText() ([]byte, error) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	entries := vb.cursors.Descending()
	var parts [][]byte
	for i := len(entries) - 1; i >= 0; i-- {
		c := entries[i].Cursor
		if !c.HasSelection() {
			continue
		}
		start, end := c.Selection()
		b, err := vb.readLocked(start, end)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}
	return bytes.Join(parts, []byte{'\n'}), nil
}

// eachCursor applies fn to every cursor, highest offset first, inside one
// undo group. fn returns where the cursor ends up; selections collapse.
func (vb *VirtualBuffer) eachCursor(fn func(c cursor.Cursor) (int64, error)) (Version, error) {
	return vb.mutate(func() error {
		vb.log.BeginGroup()
		defer vb.log.EndGroup()
		for _, e := range vb.cursors.Descending() {
			c, ok := vb.cursors.Get(e.ID)
			if !ok {
				continue
			}
			off, err := fn(c)
			if err != nil {
				return err
			}
			vb.cursors.Set(e.ID, cursor.New(off))
		}
		vb.cursors.Dedup()
		return nil
	})
}

// RegisterIterator returns an iterator positioned at offset that stays
// valid across concurrent edits. Close it when done so GC can release the
// history it pins.
func (vb *VirtualBuffer) RegisterIterator(offset int64) *Iterator {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	id := vb.nextIter
	vb.nextIter++
	it := newIterator(vb, id, min(max(offset, 0), vb.store.Len()), vb.store.Version())
	vb.iters[id] = it
	return it
}

func (vb *VirtualBuffer) unregisterIterator(id uint64) {
	vb.mu.Lock()
	delete(vb.iters, id)
	vb.mu.Unlock()
}

// readWindowAt reads up to size bytes from offset if the current version
// is still v. ok is false when the buffer moved on.
func (vb *VirtualBuffer) readWindowAt(v Version, offset int64, size int) (data []byte, ok bool, err error) {
	vb.mu.RLock()
	defer vb.mu.RUnlock()
	if vb.store.Version() != v {
		return nil, false, nil
	}
	n := vb.store.Len()
	if offset >= n {
		return []byte{}, true, nil
	}
	data, err = vb.readLocked(offset, min(offset+int64(size), n))
	return data, err == nil, err
}

// changesBetween returns the events leading from version from to version
// to.
func (vb *VirtualBuffer) changesBetween(from, to Version) ([]editlog.Event, error) {
	evs, ok := vb.log.Path(from, to)
	if !ok {
		return nil, errStaleIterator
	}
	return evs, nil
}
