package cursor

import "sort"

// ID identifies a cursor registered in a Set.
type ID uint64

// Entry is a registered cursor.
type Entry struct {
	ID     ID
	Cursor Cursor
}

// Set is the registry of live cursors for one buffer. Every edit applied to
// the buffer is fanned out to every cursor in the set.
type Set struct {
	entries []Entry
	next    ID
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{next: 1}
}

// Add registers c and returns its id.
func (s *Set) Add(c Cursor) ID {
	id := s.next
	s.next++
	s.entries = append(s.entries, Entry{ID: id, Cursor: c})
	return id
}

// Remove unregisters a cursor, reporting whether it existed.
func (s *Set) Remove(id ID) bool {
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the cursor registered under id.
func (s *Set) Get(id ID) (Cursor, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e.Cursor, true
		}
	}
	return Cursor{}, false
}

// Set replaces the cursor registered under id.
func (s *Set) Set(id ID, c Cursor) bool {
	for i, e := range s.entries {
		if e.ID == id {
			s.entries[i].Cursor = c
			return true
		}
	}
	return false
}

// Len returns the number of cursors.
func (s *Set) Len() int {
	return len(s.entries)
}

// All returns a copy of the entries in registration order.
func (s *Set) All() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Descending returns the entries ordered by offset, highest first. Editing
// at each cursor in this order leaves the offsets of cursors not yet
// visited valid.
func (s *Set) Descending() []Entry {
	out := s.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Cursor.Offset > out[j].Cursor.Offset
	})
	return out
}

// Apply repositions every cursor for e.
func (s *Set) Apply(e Edit) {
	for i := range s.entries {
		s.entries[i].Cursor = Transform(s.entries[i].Cursor, e)
	}
}

// Clamp limits every cursor to [0, limit].
func (s *Set) Clamp(limit int64) {
	for i := range s.entries {
		s.entries[i].Cursor = s.entries[i].Cursor.Clamp(limit)
	}
}

// Dedup removes cursors without a selection that share an offset with an
// earlier-registered cursor, which happens after a delete collapses them.
// It returns the removed ids.
func (s *Set) Dedup() []ID {
	seen := make(map[int64]bool, len(s.entries))
	var removed []ID
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.Cursor.HasSelection() {
			if seen[e.Cursor.Offset] {
				removed = append(removed, e.ID)
				continue
			}
			seen[e.Cursor.Offset] = true
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}
