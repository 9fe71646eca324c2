package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dshills/tessera/internal/engine"
)

func TestDocumentsCreate(t *testing.T) {
	ds := NewDocuments()
	dir := t.TempDir()

	a, created, err := ds.Create(filepath.Join(dir, "a.txt"))
	if err != nil || !created {
		t.Fatalf("Create() = %v, %v", created, err)
	}
	if a.Name != "a.txt" || !filepath.IsAbs(a.Path) || a.IsScratch() {
		t.Errorf("document = %+v", a)
	}
	b, _, _ := ds.Create(filepath.Join(dir, "b.txt"))
	if ds.Active() != b {
		t.Error("new document not active")
	}

	again, created, err := ds.Create(filepath.Join(dir, "sub", "..", "a.txt"))
	if err != nil || created || again != a {
		t.Errorf("Create() of open path = %v, %v, %v", again, created, err)
	}
	if ds.Active() != a {
		t.Error("reopened document not active")
	}
	if got, ok := ds.Lookup(filepath.Join(dir, "a.txt")); !ok || got != a {
		t.Error("Lookup failed")
	}
}

func TestDocumentsScratchNames(t *testing.T) {
	ds := NewDocuments()
	a, _ := ds.Scratch()
	b, _ := ds.Scratch()
	if !a.IsScratch() || a.Name == b.Name {
		t.Errorf("names %q %q", a.Name, b.Name)
	}
}

func TestDocumentsRemove(t *testing.T) {
	ds := NewDocuments()
	a, _ := ds.Scratch()
	b, _ := ds.Scratch()
	c, _ := ds.Scratch()
	if err := ds.SetActive(b.ID); err != nil {
		t.Fatal(err)
	}

	if err := ds.Remove(b.ID); err != nil {
		t.Fatal(err)
	}
	if ds.Active() != c {
		t.Error("last opened document should become active")
	}
	if err := ds.Remove(b.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second Remove() = %v", err)
	}
	if err := ds.SetActive(b.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("SetActive() = %v", err)
	}
	if got := ds.All(); len(got) != 2 || got[0] != a || got[1] != c {
		t.Errorf("All() = %v", got)
	}

	if _, err := c.Buffer.InsertString(0, "x"); err != nil {
		t.Fatal(err)
	}
	if len(c.pending) != 1 {
		t.Fatalf("pending = %d", len(c.pending))
	}
	_ = ds.Remove(c.ID)
	if _, err := c.Buffer.InsertString(0, "y"); err != nil {
		t.Fatal(err)
	}
	if len(c.pending) != 1 {
		t.Error("removed document still receives changes")
	}
}

func TestDocumentsCycle(t *testing.T) {
	ds := NewDocuments()
	if ds.Cycle(1) != nil {
		t.Error("Cycle on empty set")
	}
	var docs []*Document
	for range 3 {
		d, _ := ds.Scratch()
		docs = append(docs, d)
	}
	tests := []struct {
		delta int
		want  int
	}{
		{1, 0},
		{1, 1},
		{-1, 0},
		{-1, 2},
		{4, 0},
	}
	for _, tt := range tests {
		if got := ds.Cycle(tt.delta); got != docs[tt.want] {
			t.Errorf("Cycle(%d) = %s, want %s", tt.delta, got.Name, docs[tt.want].Name)
		}
	}
}

func TestDocumentsHasDirty(t *testing.T) {
	ds := NewDocuments(engine.WithChunkSize(64))
	a, _ := ds.Scratch()
	if ds.HasDirty() {
		t.Error("empty set dirty")
	}
	if _, err := a.Buffer.InsertString(0, "x"); err != nil {
		t.Fatal(err)
	}
	if !ds.HasDirty() {
		t.Error("edit not seen")
	}
}

func TestOperationError(t *testing.T) {
	tests := []struct {
		err  *OperationError
		want string
	}{
		{&OperationError{Op: "save", Target: "a.txt", Err: ErrLoading}, "save a.txt: document is still loading"},
		{&OperationError{Op: "new"}, "new"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	wrapped := fmt.Errorf("frame: %w", &OperationError{Op: "close", Err: ErrUnsavedChanges})
	var opErr *OperationError
	if !errors.As(wrapped, &opErr) || !errors.Is(wrapped, ErrUnsavedChanges) {
		t.Error("wrapping lost the cause")
	}
}

func TestRecoveredPanicError(t *testing.T) {
	err := &RecoveredPanicError{Value: "boom"}
	if err.Error() != "panic: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
