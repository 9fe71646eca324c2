package cursor

import "fmt"

// Cursor is an insertion point with an optional selection anchor.
type Cursor struct {
	Offset    int64
	Anchor    int64
	HasAnchor bool
}

// New creates a cursor at offset with no selection.
func New(offset int64) Cursor {
	return Cursor{Offset: max(offset, 0)}
}

// NewSelection creates a cursor at head selecting from anchor.
func NewSelection(anchor, head int64) Cursor {
	return Cursor{Offset: max(head, 0), Anchor: max(anchor, 0), HasAnchor: true}
}

// MoveTo returns the cursor at offset with its selection dropped.
func (c Cursor) MoveTo(offset int64) Cursor {
	return New(offset)
}

// ExtendTo returns the cursor moved to offset with its selection grown
// from the existing anchor, or from the old position when there is none.
func (c Cursor) ExtendTo(offset int64) Cursor {
	anchor := c.Offset
	if c.HasAnchor {
		anchor = c.Anchor
	}
	return NewSelection(anchor, offset)
}

// Clamp returns the cursor with both ends limited to [0, limit].
func (c Cursor) Clamp(limit int64) Cursor {
	c.Offset = min(max(c.Offset, 0), limit)
	if c.HasAnchor {
		c.Anchor = min(max(c.Anchor, 0), limit)
	}
	return c
}

// Selection returns the selected range, ordered. Without an anchor the
// range is empty at Offset.
func (c Cursor) Selection() (start, end int64) {
	if !c.HasAnchor {
		return c.Offset, c.Offset
	}
	return min(c.Anchor, c.Offset), max(c.Anchor, c.Offset)
}

// HasSelection reports whether the cursor selects at least one byte.
func (c Cursor) HasSelection() bool {
	return c.HasAnchor && c.Anchor != c.Offset
}

func (c Cursor) String() string {
	if c.HasAnchor {
		return fmt.Sprintf("Cursor(%d..%d)", c.Anchor, c.Offset)
	}
	return fmt.Sprintf("Cursor(%d)", c.Offset)
}
