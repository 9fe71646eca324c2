package fileio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/engine/chunktree"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	res := ReadFile(path, 0)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if string(res.Data) != "hello\n" || res.Hash != xxhash.Sum64String("hello\n") {
		t.Errorf("ReadFile() = %q, %x", res.Data, res.Hash)
	}

	tests := []struct {
		name  string
		path  string
		limit int64
		want  error
	}{
		{"missing", filepath.Join(dir, "nope"), 0, os.ErrNotExist},
		{"directory", dir, 0, ErrNotRegular},
		{"too large", path, 3, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := ReadFile(tt.path, tt.limit); !errors.Is(res.Err, tt.want) {
				t.Errorf("err = %v, want %v", res.Err, tt.want)
			}
		})
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	tree := chunktree.FromBytes([]byte("new content\n"), chunktree.WithChunkSize(4))
	n, sum, err := WriteAtomic(path, tree.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "new content\n" || n != int64(len(got)) {
		t.Errorf("file = %q, n = %d", got, n)
	}
	if sum != tree.Snapshot().Hash() {
		t.Errorf("hash %x, want %x", sum, tree.Snapshot().Hash())
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestWriteAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "file")
	if _, _, err := WriteAtomic(path, chunktree.SnapshotOf([]byte("x"))); err == nil {
		t.Error("write into a missing directory succeeded")
	}
}

func startFiles(t *testing.T) (*bridge.Bridge, *Files) {
	t.Helper()
	b := bridge.New()
	pool := bridge.NewPool(b, bridge.CategoryFileIO)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	return b, New(b, pool)
}

// await drains b until a message arrives or the timeout passes.
func await(t *testing.T, b *bridge.Bridge) bridge.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var got []bridge.Message
		b.DrainFrame(func(m bridge.Message) { got = append(got, m) })
		if len(got) > 0 {
			return got[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no message")
	return bridge.Message{}
}

func TestFilesOpenAndSave(t *testing.T) {
	b, files := startFiles(t)
	b.OpenBuffer(1)
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := files.Open(1, path)
	if err != nil {
		t.Fatal(err)
	}
	msg := await(t, b)
	loaded, ok := msg.Payload.(Loaded)
	if !ok || msg.Request != id || string(loaded.Data) != "abc" {
		t.Fatalf("open result = %+v", msg)
	}

	tree := chunktree.FromBytes([]byte("abcdef"))
	if _, err := files.Save(1, path, tree.Snapshot()); err != nil {
		t.Fatal(err)
	}
	saved, ok := await(t, b).Payload.(Saved)
	if !ok || saved.Err != nil || saved.Bytes != 6 || saved.Version != tree.Version() {
		t.Fatalf("save result = %+v", saved)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "abcdef" {
		t.Errorf("file = %q", got)
	}
}

// recorder captures what the file held when SetHash was called.
type recorder struct {
	mu     sync.Mutex
	hashes map[string]uint64
	before map[string]string
}

func (r *recorder) SetHash(path string, hash uint64) {
	data, _ := os.ReadFile(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[path] = hash
	r.before[path] = string(data)
}

func TestFilesSaveRecordsHashBeforeRename(t *testing.T) {
	b := bridge.New()
	pool := bridge.NewPool(b, bridge.CategoryFileIO)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	rec := &recorder{hashes: make(map[string]uint64), before: make(map[string]string)}
	files := New(b, pool, WithHashRecorder(rec))
	b.OpenBuffer(1)

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := files.Save(1, path, chunktree.SnapshotOf([]byte("new"))); err != nil {
		t.Fatal(err)
	}
	saved, ok := await(t, b).Payload.(Saved)
	if !ok || saved.Err != nil {
		t.Fatalf("save result = %+v", saved)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.hashes[path] != xxhash.Sum64String("new") || rec.hashes[path] != saved.Hash {
		t.Errorf("recorded hash = %x, saved %x", rec.hashes[path], saved.Hash)
	}
	if rec.before[path] != "old" {
		t.Errorf("hash recorded after the file was replaced (content %q)", rec.before[path])
	}
}

func TestFilesResultForClosedBufferDropped(t *testing.T) {
	b, files := startFiles(t)
	b.OpenBuffer(3)
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := files.Open(3, path); err != nil {
		t.Fatal(err)
	}
	b.CancelBuffer(3)

	time.Sleep(50 * time.Millisecond)
	var n int
	b.DrainFrame(func(bridge.Message) { n++ })
	if n != 0 {
		t.Errorf("%d results delivered for a closed buffer", n)
	}
}

func TestWatcherReportsExternalChange(t *testing.T) {
	b := bridge.New()
	b.OpenBuffer(1)
	w, err := NewWatcher(b, nil)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(t.TempDir(), "watched.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(1, path, xxhash.Sum64String("v1")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := WriteAtomic(path, chunktree.SnapshotOf([]byte("v2 from elsewhere"))); err != nil {
		t.Fatal(err)
	}
	msg := await(t, b)
	ch, ok := msg.Payload.(Changed)
	if !ok || msg.Category != bridge.CategoryWatch || msg.Buffer != 1 {
		t.Fatalf("message = %+v", msg)
	}
	if ch.Hash != xxhash.Sum64String("v2 from elsewhere") {
		t.Errorf("hash = %x", ch.Hash)
	}
}

func TestWatcherIgnoresOwnSave(t *testing.T) {
	b := bridge.New()
	b.OpenBuffer(1)
	w, err := NewWatcher(b, nil)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(t.TempDir(), "own.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(1, path, xxhash.Sum64String("v1")); err != nil {
		t.Fatal(err)
	}

	snap := chunktree.SnapshotOf([]byte("saved by editor"))
	w.SetHash(path, snap.Hash())
	if _, _, err := WriteAtomic(path, snap); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	var n int
	b.DrainFrame(func(bridge.Message) { n++ })
	if n != 0 {
		t.Errorf("own save reported %d times", n)
	}

	w.Remove(path)
	if w.Watching() != 0 {
		t.Errorf("Watching() = %d after Remove", w.Watching())
	}
}

func TestWatcherIgnoresSaveThroughFiles(t *testing.T) {
	b := bridge.New()
	b.OpenBuffer(1)
	w, err := NewWatcher(b, nil)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	pool := bridge.NewPool(b, bridge.CategoryFileIO)
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop(context.Background())
	files := New(b, pool, WithHashRecorder(w))

	path := filepath.Join(t.TempDir(), "saved.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(1, path, xxhash.Sum64String("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := files.Save(1, path, chunktree.SnapshotOf([]byte("v2"))); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	var saves int
	for time.Now().Before(deadline) {
		b.DrainFrame(func(m bridge.Message) {
			switch m.Payload.(type) {
			case Saved:
				saves++
			case Changed:
				t.Errorf("own save reported as %+v", m.Payload)
			}
		})
		time.Sleep(5 * time.Millisecond)
	}
	if saves != 1 {
		t.Errorf("%d save results", saves)
	}
}

func TestWatcherClosed(t *testing.T) {
	w, err := NewWatcher(bridge.New(), nil)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(1, "x", 0); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Add() after Close = %v", err)
	}
}
