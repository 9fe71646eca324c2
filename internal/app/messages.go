package app

import (
	"bytes"
	"errors"
	"io/fs"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/fileio"
	"github.com/dshills/tessera/internal/lsp"
	"github.com/dshills/tessera/internal/view"
)

// handleMessage applies one worker result. The bridge has already dropped
// results for closed documents and expired requests.
func (app *Application) handleMessage(m bridge.Message) {
	switch p := m.Payload.(type) {
	case fileio.Loaded:
		app.loaded(m.Buffer, p)
	case fileio.Saved:
		app.saved(m.Buffer, p)
	case fileio.Changed:
		app.changed(m.Buffer, p)
	case lsp.Diagnostics:
		app.diagnostics(m.Buffer, p)
	case bridge.WorkerExited:
		app.log.Warn("worker exited", "category", m.Category, "worker", p.Worker, "err", p.Err)
		app.notifyf("%s worker %s stopped", m.Category, p.Worker)
	default:
		app.log.Debug("unhandled message", "category", m.Category)
	}
}

// diagnostics maps published diagnostics onto the document. They are
// dropped when the server has since been sent newer content, or when the
// buffer holds edits the server has not seen yet; the server publishes
// again once they arrive.
func (app *Application) diagnostics(id bridge.BufferID, p lsp.Diagnostics) {
	doc, ok := app.docs.Get(id)
	if !ok {
		return
	}
	if len(doc.pending) > 0 || doc.resync || (doc.server != nil && doc.server.worker.Stale(p)) {
		app.log.Debug("stale diagnostics dropped", "doc", doc.Name, "version", p.Version)
		return
	}
	doc.diagnostics = lsp.MapDiagnostics(doc.Buffer, p.Items)
}

func (app *Application) loaded(id bridge.BufferID, p fileio.Loaded) {
	doc, ok := app.docs.Get(id)
	if !ok {
		return
	}
	doc.loading = false
	switch {
	case errors.Is(p.Err, fs.ErrNotExist):
		app.notifyf("%s [new file]", doc.Name)
	case p.Err != nil:
		app.notify((&OperationError{Op: "open", Target: doc.Name, Err: p.Err}).Error())
		return
	default:
		if err := doc.Buffer.Load(bytes.NewReader(p.Data)); err != nil {
			app.notify((&OperationError{Op: "load", Target: doc.Name, Err: err}).Error())
			return
		}
	}
	doc.pending = nil
	doc.diagnostics = nil
	doc.diskHash = p.Hash
	if app.watcher != nil {
		if err := app.watcher.Add(doc.ID, doc.Path, p.Hash); err != nil {
			app.log.Warn("watch failed", "path", doc.Path, "err", err)
		}
	}
	app.openLSP(doc)
}

func (app *Application) saved(id bridge.BufferID, p fileio.Saved) {
	doc, ok := app.docs.Get(id)
	if !ok {
		return
	}
	if p.Err != nil {
		app.notify((&OperationError{Op: "save", Target: doc.Name, Err: p.Err}).Error())
		return
	}
	doc.Buffer.MarkSaved(p.Version)
	doc.diskHash = p.Hash
	if app.watcher != nil {
		app.watcher.SetHash(p.Path, p.Hash)
	}
	if doc.server != nil && doc.lspOpen {
		if err := doc.server.worker.Save(doc.Path); err != nil {
			app.log.Warn("lsp save", "doc", doc.Name, "err", err)
		}
	}
	app.notifyf("wrote %s, %d bytes", doc.Name, p.Bytes)
}

// changed reacts to a file modified outside the editor. An unmodified
// document is reloaded; local edits are never overwritten. A change that
// leaves the file as the editor last wrote it is ignored.
func (app *Application) changed(id bridge.BufferID, p fileio.Changed) {
	doc, ok := app.docs.Get(id)
	if !ok {
		return
	}
	if !p.Removed && p.Hash == doc.diskHash {
		return
	}
	switch {
	case p.Removed:
		app.notifyf("%s was removed on disk", doc.Name)
	case doc.Modified():
		app.notifyf("%s changed on disk, buffer has unsaved edits", doc.Name)
	default:
		if _, err := app.files.Open(doc.ID, doc.Path); err != nil {
			app.notify((&OperationError{Op: "reload", Target: doc.Name, Err: err}).Error())
			return
		}
		doc.loading = true
		app.notifyf("%s changed on disk, reloading", doc.Name)
	}
}

func (app *Application) highlights(doc *Document) []view.Highlight {
	if len(doc.diagnostics) == 0 {
		return nil
	}
	theme := view.DefaultTheme()
	hs := make([]view.Highlight, 0, len(doc.diagnostics))
	for _, s := range doc.diagnostics {
		style := theme.Info
		switch s.Severity {
		case lsp.DiagnosticSeverityError:
			style = theme.Error
		case lsp.DiagnosticSeverityWarning:
			style = theme.Warning
		}
		hs = append(hs, view.Highlight{Start: s.Start, End: s.End, Style: style})
	}
	return hs
}
