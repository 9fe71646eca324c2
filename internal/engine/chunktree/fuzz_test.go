package chunktree

import (
	"bytes"
	"testing"
)

// FuzzEdit drives insert and delete from arbitrary input and compares with a
// flat reference.
func FuzzEdit(f *testing.F) {
	f.Add([]byte("hello world"), uint16(5), []byte(", there"), uint16(0), uint16(3))
	f.Add([]byte(""), uint16(0), []byte("x"), uint16(0), uint16(0))
	f.Add(bytes.Repeat([]byte("ab\n"), 100), uint16(150), []byte("zz"), uint16(10), uint16(200))

	f.Fuzz(func(t *testing.T, initial []byte, off uint16, ins []byte, start, length uint16) {
		tr := FromBytes(initial, WithChunkSize(MinChunkSize))
		ref := bytes.Clone(initial)

		o := min(int64(off), int64(len(ref)))
		if _, err := tr.Insert(o, ins); err != nil {
			t.Fatalf("Insert(%d): %v", o, err)
		}
		ref = append(ref[:o], append(bytes.Clone(ins), ref[o:]...)...)

		s := min(int64(start), int64(len(ref)))
		e := min(s+int64(length), int64(len(ref)))
		if _, err := tr.Delete(s, e); err != nil {
			t.Fatalf("Delete(%d, %d): %v", s, e, err)
		}
		ref = append(ref[:s], ref[e:]...)

		if got := tr.Snapshot().Bytes(); !bytes.Equal(got, ref) {
			t.Fatalf("content mismatch: got %q, want %q", got, ref)
		}
	})
}
