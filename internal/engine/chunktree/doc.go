// Package chunktree provides a persistent, weight-balanced tree of immutable
// byte chunks.
//
// Every mutation produces a new root tagged with a monotonically increasing
// Version. Prior roots are never modified; unchanged subtrees are shared
// between versions, so keeping many snapshots alive costs only the nodes on
// each edit path.
//
// Leaves hold either data chunks (at most Config.ChunkSize bytes) or gap
// chunks. A gap is a logical run of zero bytes that stores only its length;
// it is materialized lazily, and only for the bytes a read touches. Gaps make
// sparse writes far past the end of content cheap:
//
//	t := chunktree.New(chunktree.WithMaxGap(4 << 30))
//	t.Insert(2<<30, []byte("tail"))   // [0, 2GiB) is a gap
//	t.Insert(1_000_000, []byte("x"))  // splits the gap, allocates one chunk
//
// Tree is the mutable handle and is not safe for concurrent mutation.
// Snapshot values are immutable and safe for concurrent use.
package chunktree
