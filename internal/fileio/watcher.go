package fileio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/logging"
)

// Changed reports that a watched file no longer matches what the editor
// last read or wrote.
type Changed struct {
	Path    string
	Hash    uint64
	Removed bool
}

type watched struct {
	buffer bridge.BufferID
	hash   uint64
}

// Watcher reports external modification of open files under
// bridge.CategoryWatch. It watches parent directories, since atomic saves
// replace the file rather than write to it.
type Watcher struct {
	bridge *bridge.Bridge
	fsw    *fsnotify.Watcher
	log    *logging.Logger

	mu     sync.Mutex
	files  map[string]*watched
	dirs   map[string]int
	closed bool
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher posting to b.
func NewWatcher(b *bridge.Bridge, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		bridge: b,
		fsw:    fsw,
		log:    log.WithComponent("watcher"),
		files:  make(map[string]*watched),
		dirs:   make(map[string]int),
	}, nil
}

// Add watches path for buf. hash is the fingerprint of the content the
// buffer holds; events that leave the file at that hash are ignored.
func (w *Watcher) Add(buf bridge.BufferID, path string, hash uint64) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if f, ok := w.files[abs]; ok {
		f.buffer, f.hash = buf, hash
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = &watched{buffer: buf, hash: hash}
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if !w.closed {
			_ = w.fsw.Remove(dir)
		}
	}
}

// SetHash records the fingerprint the editor just wrote to path, so the
// watcher does not report the editor's own save.
func (w *Watcher) SetHash(path string, hash uint64) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	if f, ok := w.files[abs]; ok {
		f.hash = hash
	}
	w.mu.Unlock()
}

// Watching returns the number of watched files.
func (w *Watcher) Watching() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Start runs the event loop until ctx ends or the watcher is closed. If
// the underlying watcher fails, the watch category is marked degraded.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.run(ctx); err != nil {
			w.log.Error("watcher stopped", "err", err)
			w.bridge.ReportExit(bridge.CategoryWatch, "fsnotify", err)
		}
	}()
}

func (w *Watcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return w.closedErr()
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return w.closedErr()
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("event overflow, rescanning")
				w.rescan(ctx)
				continue
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// closedErr reports a channel closed by Close as a clean stop.
func (w *Watcher) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return ErrWatcherClosed
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	w.check(ctx, abs)
}

// check compares the file at abs with the recorded fingerprint and posts a
// Changed message when they differ.
func (w *Watcher) check(ctx context.Context, abs string) {
	w.mu.Lock()
	f, ok := w.files[abs]
	if !ok {
		w.mu.Unlock()
		return
	}
	buf, known := f.buffer, f.hash
	w.mu.Unlock()

	msg := Changed{Path: abs}
	data, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		msg.Removed = true
	case err != nil:
		w.log.Debug("read after event failed", "path", abs, "err", err)
		return
	default:
		msg.Hash = xxhash.Sum64(data)
		if msg.Hash == known {
			return
		}
	}

	w.mu.Lock()
	if f, ok := w.files[abs]; ok {
		f.hash = msg.Hash
	}
	w.mu.Unlock()

	w.log.Debug("external change", "path", abs, "removed", msg.Removed)
	err = w.bridge.Post(ctx, bridge.Message{Category: bridge.CategoryWatch, Buffer: buf, Payload: msg})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("post change failed", "path", abs, "err", err)
	}
}

func (w *Watcher) rescan(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.Unlock()
	for _, p := range paths {
		w.check(ctx, p)
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
