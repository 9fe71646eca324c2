package cursor

// Edit describes one change: Removed bytes deleted at Offset, then Inserted
// bytes inserted at Offset. Buffer events are either pure inserts or pure
// deletes, but the rules compose for replacements too.
type Edit struct {
	Offset   int64
	Removed  int64
	Inserted int64
}

// InsertEdit returns the edit for inserting n bytes at offset.
func InsertEdit(offset, n int64) Edit {
	return Edit{Offset: offset, Inserted: n}
}

// DeleteEdit returns the edit for deleting [start, end).
func DeleteEdit(start, end int64) Edit {
	return Edit{Offset: start, Removed: end - start}
}

// End returns the end of the removed range.
func (e Edit) End() int64 {
	return e.Offset + e.Removed
}

// Delta returns the change in content length.
func (e Edit) Delta() int64 {
	return e.Inserted - e.Removed
}

// AdjustForInsertion repositions offset after n bytes were inserted at at.
// Offsets at or after the insertion point move right.
func AdjustForInsertion(offset, at, n int64) int64 {
	if offset < at {
		return offset
	}
	return offset + n
}

// AdjustForDeletion repositions offset after [start, end) was deleted.
// Offsets inside the range collapse to start; later offsets shift left.
func AdjustForDeletion(offset, start, end int64) int64 {
	switch {
	case offset <= start:
		return offset
	case offset < end:
		return start
	}
	return offset - (end - start)
}

// TransformOffset applies e to offset.
func TransformOffset(offset int64, e Edit) int64 {
	if e.Removed > 0 {
		offset = AdjustForDeletion(offset, e.Offset, e.End())
	}
	if e.Inserted > 0 {
		offset = AdjustForInsertion(offset, e.Offset, e.Inserted)
	}
	return offset
}

// Transform applies e to both ends of c.
func Transform(c Cursor, e Edit) Cursor {
	c.Offset = TransformOffset(c.Offset, e)
	if c.HasAnchor {
		c.Anchor = TransformOffset(c.Anchor, e)
	}
	return c
}

// TransformAll returns offsets repositioned by edits applied in order.
func TransformAll(offsets []int64, edits ...Edit) []int64 {
	out := make([]int64, len(offsets))
	for i, off := range offsets {
		for _, e := range edits {
			off = TransformOffset(off, e)
		}
		out[i] = off
	}
	return out
}
