package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/config"
	"github.com/dshills/tessera/internal/lsp"
)

// server is a language server shared by every document with the same
// file extension.
type server struct {
	config config.Server
	client *lsp.Client
	worker *lsp.Worker
}

// serverFor returns the server configured for doc's extension, starting it
// on first use. The start runs as the first job of the LSP pool, so every
// document notification queued after it waits for the handshake.
func (app *Application) serverFor(doc *Document) *server {
	if doc.Path == "" {
		return nil
	}
	ext := strings.TrimPrefix(filepath.Ext(doc.Path), ".")
	sc, ok := app.cfg.LSP.Servers[ext]
	if !ok {
		return nil
	}
	if s, ok := app.servers[ext]; ok {
		return s
	}

	client := lsp.NewClient(lsp.ServerConfig{
		Command:    sc.Command,
		Args:       sc.Args,
		LanguageID: sc.LanguageID,
	}, app.log)
	s := &server{
		config: sc,
		client: client,
		worker: lsp.NewWorker(app.bridge, app.lspPool, client, app.log),
	}
	app.servers[ext] = s

	ctx := app.ctx
	err := app.lspPool.TrySubmit(func(jobCtx context.Context) error {
		if err := client.Start(jobCtx, app.root); err != nil {
			app.bridge.ReportExit(bridge.CategoryLSP, sc.Command, err)
			return err
		}
		s.worker.Watch(ctx)
		return nil
	})
	if err != nil {
		app.log.Warn("language server not started", "command", sc.Command, "err", err)
	}
	return s
}

// openLSP announces doc to its language server, or resends the whole
// content when the server already knows it.
func (app *Application) openLSP(doc *Document) {
	s := app.serverFor(doc)
	if s == nil {
		return
	}
	doc.server = s
	if doc.lspOpen {
		doc.resync = true
		return
	}
	if err := s.worker.Open(doc.ID, doc.Path, doc.Buffer.Snapshot()); err != nil {
		app.log.Warn("lsp open", "doc", doc.Name, "err", err)
		return
	}
	doc.lspOpen = true
}

// flushChanges sends the edits of this frame to the language servers. A
// frame whose changes could not be queued is followed by a full resync.
func (app *Application) flushChanges() {
	for _, doc := range app.docs.All() {
		changes := doc.pending
		doc.pending = nil
		if doc.server == nil || !doc.lspOpen || (len(changes) == 0 && !doc.resync) {
			continue
		}
		snap := doc.Buffer.Snapshot()
		var err error
		if doc.resync {
			err = doc.server.worker.Resync(doc.Path, snap)
		} else {
			err = doc.server.worker.Changes(doc.Path, changes, snap)
		}
		doc.resync = err != nil
		if err != nil && !errors.Is(err, bridge.ErrQueueFull) {
			app.log.Warn("lsp sync", "doc", doc.Name, "err", err)
		}
	}
}

func (app *Application) stopServers(ctx context.Context) {
	for ext, s := range app.servers {
		if err := s.client.Shutdown(ctx); err != nil && !errors.Is(err, lsp.ErrNotStarted) {
			app.log.Warn("language server shutdown", "ext", ext, "err", err)
		}
	}
}
