package fileio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/engine/chunktree"
	"github.com/dshills/tessera/internal/logging"
)

// Loaded is the result of a read.
type Loaded struct {
	Path    string
	Data    []byte
	Hash    uint64
	ModTime time.Time
	Err     error
}

// Saved is the result of a save. Version is the buffer version the
// snapshot was taken at.
type Saved struct {
	Path    string
	Version chunktree.Version
	Bytes   int64
	Hash    uint64
	Err     error
}

// ReadFile reads path whole. limit caps the size; zero means no cap.
func ReadFile(path string, limit int64) Loaded {
	res := Loaded{Path: path}
	f, err := os.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Err = err
		return res
	}
	if !info.Mode().IsRegular() {
		res.Err = fmt.Errorf("%s: %w", path, ErrNotRegular)
		return res
	}
	if limit > 0 && info.Size() > limit {
		res.Err = fmt.Errorf("%s: %d bytes: %w", path, info.Size(), ErrTooLarge)
		return res
	}

	data, err := io.ReadAll(f)
	if err != nil {
		res.Err = err
		return res
	}
	res.Data = data
	res.Hash = xxhash.Sum64(data)
	res.ModTime = info.ModTime()
	return res
}

// WriteAtomic writes snap to path through a temporary file in the same
// directory, syncs it and renames it into place. An existing file keeps
// its permissions. It returns the bytes written and their fingerprint.
func WriteAtomic(path string, snap chunktree.Snapshot) (int64, uint64, error) {
	return writeAtomic(path, snap, nil)
}

// writeAtomic is WriteAtomic with a hook that sees the fingerprint after
// the data is synced and before the rename makes it visible.
func writeAtomic(path string, snap chunktree.Snapshot, commit func(sum uint64)) (int64, uint64, error) {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, 0, err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	d := xxhash.New()
	n, err := snap.WriteTo(io.MultiWriter(tmp, d))
	if err != nil {
		cleanup()
		return n, 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return n, 0, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return n, 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return n, 0, err
	}
	sum := d.Sum64()
	if commit != nil {
		commit(sum)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return n, 0, fmt.Errorf("rename %s: %w", path, err)
	}
	return n, sum, nil
}

// HashRecorder is told the fingerprint of every file Files is about to
// replace. Watcher implements it.
type HashRecorder interface {
	SetHash(path string, hash uint64)
}

// Files submits reads and saves to a pool and posts their results under
// bridge.CategoryFileIO.
type Files struct {
	bridge   *bridge.Bridge
	pool     *bridge.Pool
	timeout  time.Duration
	limit    int64
	log      *logging.Logger
	recorder HashRecorder
}

// Option configures Files.
type Option func(*Files)

// WithTimeout sets the deadline of each request.
func WithTimeout(d time.Duration) Option {
	return func(f *Files) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithReadLimit caps the size of files that can be opened.
func WithReadLimit(n int64) Option {
	return func(f *Files) {
		f.limit = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Files) {
		f.log = l
	}
}

// WithHashRecorder registers r to learn the content of each save before
// it lands on disk, so a watcher never mistakes the save for an external
// change.
func WithHashRecorder(r HashRecorder) Option {
	return func(f *Files) {
		f.recorder = r
	}
}

// New creates Files running jobs on pool.
func New(b *bridge.Bridge, pool *bridge.Pool, opts ...Option) *Files {
	f := &Files{
		bridge:  b,
		pool:    pool,
		timeout: 5 * time.Second,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithComponent("fileio")
	return f
}

// Open reads path for buf. The Loaded result arrives through the bridge.
func (f *Files) Open(buf bridge.BufferID, path string) (bridge.RequestID, error) {
	id := f.bridge.Issue(bridge.CategoryFileIO, buf, f.timeout)
	err := f.pool.TrySubmit(func(ctx context.Context) error {
		res := ReadFile(path, f.limit)
		if res.Err != nil {
			f.log.Warn("read failed", "path", path, "err", res.Err)
		}
		return f.bridge.Post(ctx, bridge.Message{
			Category: bridge.CategoryFileIO,
			Buffer:   buf,
			Request:  id,
			Payload:  res,
		})
	})
	if err != nil {
		f.bridge.Forget(id)
		return bridge.RequestID{}, err
	}
	return id, nil
}

// Save writes snap to path for buf. The Saved result arrives through the
// bridge.
func (f *Files) Save(buf bridge.BufferID, path string, snap chunktree.Snapshot) (bridge.RequestID, error) {
	id := f.bridge.Issue(bridge.CategoryFileIO, buf, f.timeout)
	err := f.pool.TrySubmit(func(ctx context.Context) error {
		start := time.Now()
		var commit func(uint64)
		if f.recorder != nil {
			commit = func(sum uint64) { f.recorder.SetHash(path, sum) }
		}
		n, sum, err := writeAtomic(path, snap, commit)
		if err != nil {
			f.log.Error("save failed", "path", path, "err", err)
		} else {
			f.log.Info("saved", "path", path, "bytes", n, "elapsed", time.Since(start))
		}
		return f.bridge.Post(ctx, bridge.Message{
			Category: bridge.CategoryFileIO,
			Buffer:   buf,
			Request:  id,
			Payload:  Saved{Path: path, Version: snap.Version(), Bytes: n, Hash: sum, Err: err},
		})
	})
	if err != nil {
		f.bridge.Forget(id)
		return bridge.RequestID{}, err
	}
	return id, nil
}
