package engine

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestIteratorReadsContent(t *testing.T) {
	content := strings.Repeat("line of text\n", 500)
	vb := newBuffer(t, content, WithIteratorWindow(100))
	it := vb.RegisterIterator(0)
	defer it.Close()

	got, err := io.ReadAll(it)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("read %d bytes, want %d", len(got), len(content))
	}
	if _, ok := it.Next(); ok {
		t.Error("Next() past end")
	}
}

func TestIteratorNextLine(t *testing.T) {
	vb := newBuffer(t, "one\n\nthree", WithIteratorWindow(2))
	it := vb.RegisterIterator(0)
	defer it.Close()

	var lines []string
	for {
		line, ok := it.NextLine()
		if !ok {
			break
		}
		lines = append(lines, string(line))
	}
	want := []string{"one", "", "three"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestIteratorSeekAndOffset(t *testing.T) {
	vb := newBuffer(t, "abcdef")
	it := vb.RegisterIterator(0)
	defer it.Close()

	it.Seek(4)
	if b, ok := it.Next(); !ok || b != 'e' {
		t.Errorf("Next() after Seek(4) = %q, %v", b, ok)
	}
	it.Seek(100)
	if off := it.Offset(); off != 6 {
		t.Errorf("Offset() after Seek(100) = %d", off)
	}
}

func TestIteratorKeepsWindowAcrossDisjointEdits(t *testing.T) {
	store := newCountingStorage()
	vb, err := New(WithStorage(store), WithIteratorWindow(16), WithCacheBlock(16))
	if err != nil {
		t.Fatal(err)
	}
	mustInsert(t, vb, 0, strings.Repeat("abcdefghijklmnop", 8))

	it := vb.RegisterIterator(16)
	defer it.Close()
	if b, _ := it.Next(); b != 'a' {
		t.Fatalf("first byte = %q", b)
	}

	mustInsert(t, vb, 100, "AFTER")
	mustInsert(t, vb, 0, "BEFORE")
	mustDelete(t, vb, 0, 3)
	store.reset()
	for _, want := range []byte("bcdefghijklmnop") {
		if b, ok := it.Next(); !ok || b != want {
			t.Fatalf("Next() = %q, %v, want %q", b, ok, want)
		}
	}
	if n := store.reads.Load(); n != 0 {
		t.Errorf("window refetched: %d store reads", n)
	}
	if off := it.Offset(); off != 35 {
		t.Errorf("Offset() = %d, want 35", off)
	}
}

func TestIteratorRefetchesOverlappingEdit(t *testing.T) {
	vb := newBuffer(t, "0123456789", WithIteratorWindow(64))
	it := vb.RegisterIterator(0)
	defer it.Close()

	it.Next()
	it.Next()
	mustDelete(t, vb, 4, 8)
	mustInsert(t, vb, 4, "xy")

	rest, _ := io.ReadAll(it)
	if string(rest) != "23xy89" {
		t.Errorf("rest = %q, want %q", rest, "23xy89")
	}
}

func TestIteratorFollowsUndo(t *testing.T) {
	vb := newBuffer(t, "world")
	mustInsert(t, vb, 0, "hello ")
	it := vb.RegisterIterator(6)
	defer it.Close()

	vb.Undo()
	if off := it.Offset(); off != 0 {
		t.Errorf("Offset() after undo = %d, want 0", off)
	}
	vb.Redo()
	rest, _ := io.ReadAll(it)
	if string(rest) != "world" {
		t.Errorf("rest = %q", rest)
	}
}

func TestIteratorRecoversFromDiscardedBranch(t *testing.T) {
	vb := newBuffer(t, "abcdef", WithMaxUndo(1))
	mustInsert(t, vb, 6, "ghijkl")
	it := vb.RegisterIterator(10)
	it.Next()

	vb.Undo()
	mustInsert(t, vb, 0, "Z")

	if off := it.Offset(); off != vb.Len() {
		t.Errorf("Offset() = %d, want clamp to %d", off, vb.Len())
	}
	rest, _ := io.ReadAll(it)
	if len(rest) != 0 {
		t.Errorf("rest = %q", rest)
	}
	it.Close()
}

func TestClosedIteratorYieldsNothing(t *testing.T) {
	vb := newBuffer(t, "abc")
	it := vb.RegisterIterator(0)
	it.Close()
	if _, ok := it.Next(); ok {
		t.Error("closed iterator returned a byte")
	}
	if err := it.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

// TestIteratorSafety reads the whole buffer while another goroutine keeps
// inserting at the start. Edits land before the iterator's window, so the
// iterator must see exactly the original content.
func TestIteratorSafety(t *testing.T) {
	content := strings.Repeat("0123456789abcdef", 512)
	vb := newBuffer(t, content, WithIteratorWindow(64), WithCacheBlock(32))
	it := vb.RegisterIterator(0)
	defer it.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			vb.InsertString(0, "#")
			if vb.Len() > int64(len(content))+2000 {
				vb.Undo()
			}
		}
	}()

	var got bytes.Buffer
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		got.WriteByte(b)
	}
	close(stop)
	wg.Wait()

	if got.String() != content {
		t.Errorf("iterator read %d bytes that differ from the %d byte original", got.Len(), len(content))
	}
}
