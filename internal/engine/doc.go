// Package engine provides the VirtualBuffer, the single façade through which
// the rest of the editor reads and mutates buffer content.
//
// # Architecture
//
// A VirtualBuffer combines the engine sub-packages:
//
//   - chunktree: persistent weight-balanced tree of immutable chunks
//   - editlog: append-only event log driving undo, redo and replay
//   - cache: byte-budgeted LRU of materialized blocks
//   - lineindex: O(log n) offset/line conversion
//   - cursor: repositioning rules and the cursor registry
//
// Every mutation appends an event, updates the tree, invalidates the cache,
// updates the line index and repositions every registered cursor before any
// read can observe the new version.
//
// # Thread Safety
//
// Mutations serialize on a write lock. Reads hold a read lock only while
// they copy bytes, and Snapshot returns an immutable value that can be read
// from any goroutine without locking.
//
// # Iterators
//
// RegisterIterator returns an Iterator that caches a window of content and
// the version it was read from. Edits outside the window leave it valid;
// edits inside it cause a lazy refetch. Live iterators hold back garbage
// collection of the history they still depend on.
//
// # Basic Usage
//
//	vb, _ := engine.New()
//	vb.Insert(0, []byte("hello world"))
//	vb.Delete(5, 11)  // "hello"
//	vb.Undo()         // "hello world"
//	vb.Redo()         // "hello"
package engine
