// Package cursor provides cursor values, the repositioning rules applied to
// them after every edit, and the per-buffer cursor registry.
//
// Repositioning rules:
//
//   - Inserting N bytes at O shifts every offset >= O by +N.
//   - Deleting [O, O+L) collapses offsets inside the range to O and shifts
//     offsets at or after O+L by -L.
//
// A Cursor optionally carries a selection anchor; both ends follow the same
// rules. Cursor is an immutable value type. Set is not safe for concurrent
// use; the buffer that owns it serializes access.
package cursor
