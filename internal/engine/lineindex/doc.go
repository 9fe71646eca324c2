// Package lineindex maps byte offsets to line numbers and back in O(log n).
//
// The index stores the byte length of every line (terminating newline
// included) in blocks held by a randomized balanced tree whose nodes cache
// subtree byte and line totals. A line's start offset is the sum of the
// lengths before it, so an edit only rewrites the lines it touches; every
// later line start shifts implicitly.
package lineindex
