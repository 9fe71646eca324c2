package lsp

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/engine/chunktree"
	"github.com/dshills/tessera/internal/logging"
)

// Worker feeds document events to a Client off the editor loop and posts
// published diagnostics back under bridge.CategoryLSP. Jobs run on a
// single-worker pool so the server sees edits in order.
type Worker struct {
	bridge *bridge.Bridge
	pool   *bridge.Pool
	client *Client
	log    *logging.Logger

	mu   sync.Mutex
	docs map[string]bridge.BufferID
}

// NewWorker connects client to b. pool must belong to bridge.CategoryLSP.
func NewWorker(b *bridge.Bridge, pool *bridge.Pool, client *Client, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Nop()
	}
	w := &Worker{
		bridge: b,
		pool:   pool,
		client: client,
		log:    log.WithComponent("lsp-worker"),
		docs:   make(map[string]bridge.BufferID),
	}
	client.OnDiagnostics(w.publish)
	return w
}

// Watch reports a lost server connection as a degraded LSP category. It
// returns immediately.
func (w *Worker) Watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-w.client.Done():
		}
		if err := w.client.Err(); err != nil {
			w.bridge.ReportExit(bridge.CategoryLSP, w.client.config.Command, err)
		}
	}()
}

func (w *Worker) publish(p PublishDiagnosticsParams) {
	path := docKey(URIToFilePath(p.URI))
	w.mu.Lock()
	buf, ok := w.docs[path]
	w.mu.Unlock()
	if !ok {
		return
	}
	msg := bridge.Message{
		Category: bridge.CategoryLSP,
		Buffer:   buf,
		Payload:  Diagnostics{Path: path, Version: p.Version, Items: p.Diagnostics},
	}
	if !w.bridge.TryPost(msg) {
		w.log.Warn("diagnostics dropped, channel full", "path", path)
	}
}

// Stale reports whether d describes content older than what the server
// has since been sent. Diagnostics without a version are never stale.
func (w *Worker) Stale(d Diagnostics) bool {
	if d.Version <= 0 {
		return false
	}
	cur, ok := w.client.DocumentVersion(d.Path)
	return ok && d.Version < cur
}

// Open announces a document with the content of snap.
func (w *Worker) Open(buf bridge.BufferID, path string, snap chunktree.Snapshot) error {
	path = docKey(path)
	w.mu.Lock()
	w.docs[path] = buf
	w.mu.Unlock()
	return w.pool.TrySubmit(func(context.Context) error {
		return w.client.DidOpen(path, DetectLanguageID(path), snap.String())
	})
}

// Changes sends the changes applied to path during one frame. snap is the
// content after them and is sent whole when the changes cannot be
// expressed incrementally.
func (w *Worker) Changes(path string, changes []engine.Change, snap chunktree.Snapshot) error {
	if len(changes) == 0 {
		return nil
	}
	path = docKey(path)
	events := make([]TextDocumentContentChangeEvent, 0, len(changes))
	for _, c := range changes {
		ev, ok := ChangeEvent(c)
		if !ok {
			events = nil
			break
		}
		events = append(events, ev)
	}
	return w.pool.TrySubmit(func(context.Context) error {
		if events == nil || w.client.Capabilities().SyncKind() == TextDocumentSyncKindFull {
			events = []TextDocumentContentChangeEvent{FullChange(snap.String())}
		}
		_, err := w.client.DidChange(path, events)
		return err
	})
}

// Resync replaces the server's copy of path with snap.
func (w *Worker) Resync(path string, snap chunktree.Snapshot) error {
	path = docKey(path)
	return w.pool.TrySubmit(func(context.Context) error {
		_, err := w.client.DidChange(path, []TextDocumentContentChangeEvent{FullChange(snap.String())})
		return err
	})
}

// Save tells the server path was written.
func (w *Worker) Save(path string) error {
	path = docKey(path)
	return w.pool.TrySubmit(func(context.Context) error {
		return w.client.DidSave(path)
	})
}

// Close forgets path. Diagnostics for it are no longer posted.
func (w *Worker) Close(path string) error {
	path = docKey(path)
	w.mu.Lock()
	delete(w.docs, path)
	w.mu.Unlock()
	return w.pool.TrySubmit(func(context.Context) error {
		return w.client.DidClose(path)
	})
}

// docKey normalizes path the way URIs are built from it.
func docKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
