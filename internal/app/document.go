package app

import (
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/lsp"
)

// Document is an open buffer and the editor state kept alongside it.
// Everything except the buffer itself is owned by the control loop.
type Document struct {
	// ID keys the document in the bridge.
	ID bridge.BufferID

	// Path is the absolute file path (empty for scratch buffers).
	Path string

	// Name is the display name.
	Name string

	Buffer *engine.VirtualBuffer

	loading     bool
	pending     []engine.Change
	unsubscribe func()
	diagnostics []lsp.Span
	server      *server
	lspOpen     bool
	resync      bool
	diskHash    uint64 // fingerprint of the last content read or written
	collectors  []prometheus.Collector
}

// IsScratch returns true if this is a scratch buffer (no file path).
func (d *Document) IsScratch() bool {
	return d.Path == ""
}

// Loading reports whether the file content is still being read.
func (d *Document) Loading() bool {
	return d.loading
}

// Modified reports whether the buffer differs from what was last loaded or
// saved.
func (d *Document) Modified() bool {
	return d.Buffer.Modified()
}

// Diagnostics returns the last diagnostics published for the document.
func (d *Document) Diagnostics() []lsp.Span {
	return d.diagnostics
}

func (d *Document) cacheCollectors() []prometheus.Collector {
	if d.collectors == nil {
		d.collectors = d.Buffer.Cache().Collectors(prometheus.Labels{
			"buffer": strconv.FormatUint(uint64(d.ID), 10),
		})
	}
	return d.collectors
}

// Documents manages all open documents in the order they were opened.
type Documents struct {
	mu     sync.RWMutex
	docs   map[bridge.BufferID]*Document
	paths  map[string]bridge.BufferID
	order  []bridge.BufferID
	active bridge.BufferID
	next   bridge.BufferID
	opts   []engine.Option
}

// NewDocuments creates an empty set. opts configure every buffer.
func NewDocuments(opts ...engine.Option) *Documents {
	return &Documents{
		docs:  make(map[bridge.BufferID]*Document),
		paths: make(map[string]bridge.BufferID),
		opts:  opts,
	}
}

// Create returns the document for path, making it active. created is false
// when path was already open; otherwise the document starts empty.
func (ds *Documents) Create(path string) (doc *Document, created bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if id, ok := ds.paths[abs]; ok {
		ds.active = id
		return ds.docs[id], false, nil
	}
	doc, err = ds.add(abs, filepath.Base(abs))
	if err != nil {
		return nil, false, err
	}
	ds.paths[abs] = doc.ID
	return doc, true, nil
}

// Scratch creates an unnamed document and makes it active.
func (ds *Documents) Scratch() (*Document, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.add("", "")
}

func (ds *Documents) add(path, name string) (*Document, error) {
	vb, err := engine.New(ds.opts...)
	if err != nil {
		return nil, err
	}
	ds.next++
	doc := &Document{ID: ds.next, Path: path, Name: name, Buffer: vb}
	if name == "" {
		doc.Name = "[scratch " + strconv.FormatUint(uint64(doc.ID), 10) + "]"
	}
	doc.unsubscribe = vb.Subscribe(func(c engine.Change) {
		doc.pending = append(doc.pending, c)
	})
	ds.docs[doc.ID] = doc
	ds.order = append(ds.order, doc.ID)
	ds.active = doc.ID
	return doc, nil
}

// Remove forgets the document with id. The most recently opened remaining
// document becomes active if id was.
func (ds *Documents) Remove(id bridge.BufferID) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, ok := ds.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.unsubscribe()
	delete(ds.docs, id)
	if doc.Path != "" {
		delete(ds.paths, doc.Path)
	}
	ds.order = slices.DeleteFunc(ds.order, func(o bridge.BufferID) bool { return o == id })
	if ds.active == id {
		ds.active = 0
		if n := len(ds.order); n > 0 {
			ds.active = ds.order[n-1]
		}
	}
	return nil
}

// Get returns the document with id.
func (ds *Documents) Get(id bridge.BufferID) (*Document, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	doc, ok := ds.docs[id]
	return doc, ok
}

// Lookup returns the document open for path.
func (ds *Documents) Lookup(path string) (*Document, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	id, ok := ds.paths[abs]
	if !ok {
		return nil, false
	}
	return ds.docs[id], true
}

// Active returns the currently active document, or nil.
func (ds *Documents) Active() *Document {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.docs[ds.active]
}

// SetActive makes the document with id active.
func (ds *Documents) SetActive(id bridge.BufferID) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if _, ok := ds.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	ds.active = id
	return nil
}

// All returns all open documents in opening order.
func (ds *Documents) All() []*Document {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	docs := make([]*Document, 0, len(ds.order))
	for _, id := range ds.order {
		docs = append(docs, ds.docs[id])
	}
	return docs
}

// Len returns the number of open documents.
func (ds *Documents) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.docs)
}

// HasDirty returns true if any document has unsaved changes.
func (ds *Documents) HasDirty() bool {
	for _, doc := range ds.All() {
		if doc.Modified() {
			return true
		}
	}
	return false
}

// Cycle activates the document delta places away in opening order,
// wrapping around, and returns it.
func (ds *Documents) Cycle(delta int) *Document {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	n := len(ds.order)
	if n == 0 {
		return nil
	}
	i := slices.Index(ds.order, ds.active)
	if i < 0 {
		i = 0
	}
	i = ((i+delta)%n + n) % n
	ds.active = ds.order[i]
	return ds.docs[ds.active]
}
