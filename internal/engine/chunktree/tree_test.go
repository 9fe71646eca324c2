package chunktree

import (
	"bytes"
	"errors"
	"math/bits"
	"math/rand"
	"strings"
	"testing"
	"testing/quick"
)

func mustInsert(t *testing.T, tr *Tree, off int64, s string) Version {
	t.Helper()
	v, err := tr.Insert(off, []byte(s))
	if err != nil {
		t.Fatalf("Insert(%d, %q): %v", off, s, err)
	}
	return v
}

func TestNewIsEmpty(t *testing.T) {
	tr := New()
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
	if tr.Version() != 0 {
		t.Errorf("Version() = %d, want 0", tr.Version())
	}
	if got := tr.Snapshot().String(); got != "" {
		t.Errorf("content = %q, want empty", got)
	}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		offset  int64
		text    string
		want    string
	}{
		{"into empty", "", 0, "hello", "hello"},
		{"at start", "world", 0, "hello ", "hello world"},
		{"at end", "hello", 5, " world", "hello world"},
		{"in middle", "helloworld", 5, " ", "hello world"},
		{"empty payload", "hello", 3, "", "hello"},
		{"multi chunk", "ab", 1, strings.Repeat("x", 300), "a" + strings.Repeat("x", 300) + "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromBytes([]byte(tt.initial), WithChunkSize(MinChunkSize))
			if _, err := tr.Insert(tt.offset, []byte(tt.text)); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if got := tr.Snapshot().String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		initial    string
		start, end int64
		want       string
	}{
		{"prefix", "hello world", 0, 6, "world"},
		{"suffix", "hello world", 5, 11, "hello"},
		{"middle", "hello world", 2, 9, "held"},
		{"all", "hello", 0, 5, ""},
		{"empty range", "hello", 2, 2, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromBytes([]byte(tt.initial))
			if _, err := tr.Delete(tt.start, tt.end); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if got := tr.Snapshot().String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRangeErrors(t *testing.T) {
	tr := FromBytes([]byte("hello"))

	tests := []struct {
		name string
		call func() error
	}{
		{"insert past end", func() error { _, err := tr.Insert(6, []byte("x")); return err }},
		{"insert negative", func() error { _, err := tr.Insert(-1, []byte("x")); return err }},
		{"delete past end", func() error { _, err := tr.Delete(3, 9); return err }},
		{"delete inverted", func() error { _, err := tr.Delete(4, 2); return err }},
		{"read past end", func() error { _, err := tr.Read(0, 6); return err }},
		{"gap without MaxGap", func() error { _, err := tr.InsertGap(0, 10); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("err = %v, want ErrOutOfRange", err)
			}
			var re *RangeError
			if !errors.As(err, &re) || re.Len != 5 {
				t.Errorf("RangeError = %+v, want Len 5", re)
			}
		})
	}
	if tr.Version() != 0 {
		t.Errorf("failed operations changed version to %d", tr.Version())
	}
}

func TestVersionsArePersistent(t *testing.T) {
	tr := New()
	v1 := mustInsert(t, tr, 0, "hello world")
	s1 := tr.Snapshot()
	v2, err := tr.Delete(5, 11)
	if err != nil {
		t.Fatal(err)
	}

	if v2 <= v1 {
		t.Errorf("versions not increasing: %d then %d", v1, v2)
	}
	if got := s1.String(); got != "hello world" {
		t.Errorf("old snapshot changed to %q", got)
	}
	if got := tr.Snapshot().String(); got != "hello" {
		t.Errorf("current = %q, want %q", got, "hello")
	}

	if !tr.Restore(v1) {
		t.Fatal("Restore(v1) failed")
	}
	if tr.Version() != v1 || tr.Snapshot().String() != "hello world" {
		t.Errorf("restored to %d %q", tr.Version(), tr.Snapshot().String())
	}

	next := mustInsert(t, tr, 0, ">")
	if next <= v2 {
		t.Errorf("version after restore = %d, want > %d", next, v2)
	}
}

func TestPrune(t *testing.T) {
	tr := New()
	var versions []Version
	for i := 0; i < 10; i++ {
		versions = append(versions, mustInsert(t, tr, tr.Len(), "x"))
	}
	low := versions[5]
	dropped := tr.Prune(func(v Version) bool { return v >= low })
	if dropped != 6 {
		t.Errorf("dropped %d, want 6", dropped)
	}
	if _, ok := tr.At(versions[4]); ok {
		t.Error("version below low water still retained")
	}
	s, ok := tr.At(versions[7])
	if !ok || s.Len() != 8 {
		t.Errorf("At(v7) = %d bytes, %v", s.Len(), ok)
	}
}

func TestGapInsert(t *testing.T) {
	tr := New(WithMaxGap(100))
	mustInsert(t, tr, 10, "end")
	got, err := tr.Read(0, tr.Len())
	if err != nil {
		t.Fatal(err)
	}
	want := append(make([]byte, 10), "end"...)
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	mustInsert(t, tr, 4, "mid")
	got, _ = tr.Read(0, tr.Len())
	want = append(append(append(make([]byte, 4), "mid"...), make([]byte, 6)...), "end"...)
	if !bytes.Equal(got, want) {
		t.Errorf("after split got %q, want %q", got, want)
	}
}

func TestRuns(t *testing.T) {
	tr := New(WithMaxGap(100))
	mustInsert(t, tr, 10, "end")
	mustInsert(t, tr, 4, "mid")

	type run struct {
		off, n int64
		gap    bool
	}
	var got []run
	tr.Snapshot().Runs(2, 15, func(off, n int64, gap bool) {
		got = append(got, run{off, n, gap})
	})
	want := []run{{2, 2, true}, {4, 3, false}, {7, 6, true}, {13, 2, false}}
	if len(got) != len(want) {
		t.Fatalf("Runs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("run %d = %v, want %v", i, got[i], want[i])
		}
	}

	var calls int
	tr.Snapshot().Runs(5, 5, func(int64, int64, bool) { calls++ })
	if calls != 0 {
		t.Errorf("empty range produced %d runs", calls)
	}
}

func TestSparseTwoGigabytes(t *testing.T) {
	const size = 2 << 30
	tr := New(WithMaxGap(4 << 30))
	mustInsert(t, tr, size, "tail")
	mustInsert(t, tr, 1_000_000, "hello")

	if tr.Len() != size+9 {
		t.Fatalf("Len() = %d, want %d", tr.Len(), size+9)
	}
	got, err := tr.Read(1_000_000, 1_000_005)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("read = %q, want %q", got, "hello")
	}
	if b, _ := tr.Snapshot().ByteAt(999_999); b != 0 {
		t.Errorf("gap byte = %d, want 0", b)
	}
	got, _ = tr.Read(tr.Len()-4, tr.Len())
	if string(got) != "tail" {
		t.Errorf("tail = %q", got)
	}
	if n := tr.Snapshot().ChunkCount(); n > 4 {
		t.Errorf("ChunkCount() = %d, gap was materialized", n)
	}
}

func TestLineQueries(t *testing.T) {
	s := FromBytes([]byte("ab\ncd\n\nefg"), WithChunkSize(MinChunkSize)).Snapshot()
	starts := []int64{0, 3, 6, 7}
	for line, want := range starts {
		got, ok := s.LineStart(int64(line))
		if !ok || got != want {
			t.Errorf("LineStart(%d) = %d, %v; want %d", line, got, ok, want)
		}
	}
	if _, ok := s.LineStart(4); ok {
		t.Error("LineStart past last line succeeded")
	}
	for off, want := range []int64{0, 0, 0, 1, 1, 1, 2, 3, 3, 3, 3} {
		if got := s.LineOf(int64(off)); got != want {
			t.Errorf("LineOf(%d) = %d, want %d", off, got, want)
		}
	}
}

func TestChunkIteratorBoundsGaps(t *testing.T) {
	tr := New(WithMaxGap(1 << 20))
	mustInsert(t, tr, 1<<20, "x")
	it := tr.Snapshot().Chunks()
	var total int64
	for it.Next() {
		if len(it.Bytes()) > len(zeros) {
			t.Fatalf("segment of %d bytes", len(it.Bytes()))
		}
		if it.Offset() != total {
			t.Fatalf("Offset() = %d, want %d", it.Offset(), total)
		}
		total += int64(len(it.Bytes()))
	}
	if total != tr.Len() {
		t.Errorf("iterated %d bytes, want %d", total, tr.Len())
	}
}

func TestHashIgnoresLayout(t *testing.T) {
	text := strings.Repeat("hello world\n", 100)
	a := FromBytes([]byte(text), WithChunkSize(MinChunkSize)).Snapshot()

	b := New()
	for i := len(text); i > 0; i -= 7 {
		mustInsert(t, b, 0, text[max(i-7, 0):i])
	}

	if a.Hash() != b.Snapshot().Hash() {
		t.Error("equal content hashed differently")
	}
	if !a.Equal(b.Snapshot()) {
		t.Error("Equal() = false for equal content")
	}
}

// TestRandomEditsMatchReference applies random edits to a tree and a flat
// slice and checks content, balance and line counts agree.
func TestRandomEditsMatchReference(t *testing.T) {
	f := func(seed int64) bool {
		rng := rand.New(rand.NewSource(seed))
		tr := New(WithChunkSize(MinChunkSize))
		var ref []byte

		for i := 0; i < 300; i++ {
			n := int64(len(ref))
			if n == 0 || rng.Intn(3) > 0 {
				off := rng.Int63n(n + 1)
				data := make([]byte, 1+rng.Intn(150))
				for j := range data {
					data[j] = "abc\n"[rng.Intn(4)]
				}
				if _, err := tr.Insert(off, data); err != nil {
					t.Log(err)
					return false
				}
				ref = append(ref[:off], append(data, ref[off:]...)...)
			} else {
				start := rng.Int63n(n)
				end := start + rng.Int63n(n-start+1)
				if _, err := tr.Delete(start, end); err != nil {
					t.Log(err)
					return false
				}
				ref = append(ref[:start], ref[end:]...)
			}
		}

		s := tr.Snapshot()
		if !bytes.Equal(s.Bytes(), ref) {
			t.Logf("seed %d: content mismatch", seed)
			return false
		}
		if s.Newlines() != int64(bytes.Count(ref, newline)) {
			t.Logf("seed %d: newline count %d", seed, s.Newlines())
			return false
		}
		limit := 3*bits.Len(uint(s.ChunkCount())) + 4
		if s.Height() > limit {
			t.Logf("seed %d: height %d exceeds %d for %d chunks", seed, s.Height(), limit, s.ChunkCount())
			return false
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}

func TestTypingDoesNotFragment(t *testing.T) {
	tr := New()
	for i := 0; i < 1000; i++ {
		mustInsert(t, tr, tr.Len(), "a")
	}
	if n := tr.Snapshot().ChunkCount(); n != 1 {
		t.Errorf("ChunkCount() = %d after typing 1000 bytes, want 1", n)
	}
}

func TestFromReader(t *testing.T) {
	text := strings.Repeat("line of text\n", 2000)
	tr, err := FromReader(strings.NewReader(text), WithChunkSize(512))
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Snapshot().String(); got != text {
		t.Error("content mismatch")
	}
	if tr.Snapshot().ChunkCount() != (len(text)+511)/512 {
		t.Errorf("ChunkCount() = %d", tr.Snapshot().ChunkCount())
	}
}

func TestReplace(t *testing.T) {
	tr := New()
	mustInsert(t, tr, 0, "old")
	b := NewBuilder(DefaultChunkSize)
	b.Write([]byte("new content"))
	b.WriteGap(3)
	v := tr.Replace(b.Build())
	if v == 0 || tr.Version() != v {
		t.Errorf("Replace version = %d", v)
	}
	if got := tr.Snapshot().String(); got != "new content\x00\x00\x00" {
		t.Errorf("content = %q", got)
	}
	if tr.Retained() != 1 {
		t.Errorf("Retained() = %d, want 1", tr.Retained())
	}
}
