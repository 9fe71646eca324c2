package editlog

import (
	"fmt"
	"time"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// Kind identifies the type of an edit.
type Kind uint8

const (
	// Insert adds Data at Offset.
	Insert Kind = iota
	// Delete removes Data from Offset.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Event is one recorded edit. Data holds the inserted bytes for an insert
// and the removed bytes for a delete. When Gap is non-zero the payload is
// Gap zero bytes held as a sparse gap and Data is nil.
type Event struct {
	Kind   Kind
	Offset int64
	Data   []byte
	Gap    int64
	Before chunktree.Version
	After  chunktree.Version
	Group  uint64
	Time   time.Time
}

// Len returns the number of bytes inserted or removed.
func (e Event) Len() int64 {
	if e.Gap > 0 {
		return e.Gap
	}
	return int64(len(e.Data))
}

// End returns Offset + Len.
func (e Event) End() int64 {
	return e.Offset + e.Len()
}

// Invert returns the event that undoes e.
func (e Event) Invert() Event {
	inv := e
	inv.Before, inv.After = e.After, e.Before
	if e.Kind == Insert {
		inv.Kind = Delete
	} else {
		inv.Kind = Insert
	}
	return inv
}

// Target is the store an event is applied to.
type Target interface {
	Insert(offset int64, data []byte) (chunktree.Version, error)
	InsertGap(offset, n int64) (chunktree.Version, error)
	Delete(start, end int64) (chunktree.Version, error)
}

// ApplyTo performs the event on t and returns the resulting version.
func (e Event) ApplyTo(t Target) (chunktree.Version, error) {
	switch {
	case e.Kind == Insert && e.Gap > 0:
		return t.InsertGap(e.Offset, e.Gap)
	case e.Kind == Insert:
		return t.Insert(e.Offset, e.Data)
	}
	return t.Delete(e.Offset, e.End())
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d+%d (%d->%d)", e.Kind, e.Offset, e.Len(), e.Before, e.After)
}
