package chunktree

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is matched by every RangeError.
var ErrOutOfRange = errors.New("chunktree: range out of bounds")

// RangeError reports an offset or range outside the valid bounds of a tree.
type RangeError struct {
	Op    string
	Start int64
	End   int64
	Len   int64
}

func (e *RangeError) Error() string {
	if e.Start == e.End {
		return fmt.Sprintf("chunktree: %s at %d out of range (len %d)", e.Op, e.Start, e.Len)
	}
	return fmt.Sprintf("chunktree: %s [%d,%d) out of range (len %d)", e.Op, e.Start, e.End, e.Len)
}

// Is reports whether target is ErrOutOfRange.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func rangeErr(op string, start, end, n int64) error {
	return &RangeError{Op: op, Start: start, End: end, Len: n}
}
