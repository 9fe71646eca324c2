// Package app runs the editor: a single control loop that reads terminal
// input, drains worker results from the bridge, applies edits to the open
// buffers and renders the active one, once per frame.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/tessera/internal/bridge"
	"github.com/dshills/tessera/internal/config"
	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/fileio"
	"github.com/dshills/tessera/internal/logging"
	"github.com/dshills/tessera/internal/view"
)

// Options configures the application.
type Options struct {
	// Config holds the settings. The zero value means config.Default().
	Config *config.Config

	// Logger receives the log output of every component.
	Logger *logging.Logger

	// Registry, when set, receives the loop, bridge and cache metrics.
	Registry prometheus.Registerer

	// Root is the workspace directory handed to language servers.
	Root string
}

// Application is the central coordinator. The control loop owns the
// documents and the view; workers reach it only through the bridge.
type Application struct {
	cfg      config.Config
	log      *logging.Logger
	registry prometheus.Registerer
	root     string

	screen  tcell.Screen
	view    *view.View
	metrics *Metrics

	bridge   *bridge.Bridge
	filePool *bridge.Pool
	lspPool  *bridge.Pool
	files    *fileio.Files
	watcher  *fileio.Watcher
	servers  map[string]*server

	docs   *Documents
	events chan tcell.Event

	ctx       context.Context
	message   string
	clipboard []byte // shared by every document
	confirm   rune
	quit      bool
	lastGC    time.Time
	running   atomic.Bool
}

// New creates an application drawing on screen. Run initializes the
// screen.
func New(screen tcell.Screen, opts Options) (*Application, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ComponentError{Component: "config", Action: "validate", Err: err}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	app := &Application{
		cfg:      cfg,
		log:      log.WithComponent("app"),
		registry: opts.Registry,
		root:     opts.Root,
		screen:   screen,
		view:     view.New(screen, view.WithTabWidth(cfg.Editor.TabWidth)),
		metrics:  NewMetrics(opts.Registry),
		servers:  make(map[string]*server),
		docs:     NewDocuments(BufferOptions(cfg.Buffer)...),
		events:   make(chan tcell.Event, 256),
		ctx:      context.Background(),
	}

	b := cfg.Bridge
	app.bridge = bridge.New(
		bridge.WithCapacity(bridge.CategoryLSP, b.LSPQueue),
		bridge.WithCapacity(bridge.CategoryFileIO, b.FileQueue),
		bridge.WithCapacity(bridge.CategoryWatch, b.WatchQueue),
		bridge.WithDrainBudget(b.DrainBudget),
		bridge.WithMetrics(bridge.NewMetrics(opts.Registry)),
		bridge.WithLogger(log),
	)
	app.filePool = bridge.NewPool(app.bridge, bridge.CategoryFileIO,
		bridge.WithWorkers(b.Workers),
		bridge.WithQueueSize(b.FileQueue),
		bridge.WithJobTimeout(b.RequestTimeout.Std()),
		bridge.WithPoolLogger(log),
	)
	// One LSP worker keeps document notifications in order.
	app.lspPool = bridge.NewPool(app.bridge, bridge.CategoryLSP,
		bridge.WithWorkers(1),
		bridge.WithQueueSize(b.LSPQueue),
		bridge.WithPoolLogger(log),
	)
	fileOpts := []fileio.Option{
		fileio.WithTimeout(b.RequestTimeout.Std()),
		fileio.WithLogger(log),
	}
	w, err := fileio.NewWatcher(app.bridge, log)
	if err != nil {
		app.log.Warn("file watching unavailable", "err", err)
		app.bridge.ReportExit(bridge.CategoryWatch, "watcher", err)
	} else {
		app.watcher = w
		fileOpts = append(fileOpts, fileio.WithHashRecorder(w))
	}
	app.files = fileio.New(app.bridge, app.filePool, fileOpts...)
	return app, nil
}

// BufferOptions translates the buffer settings to engine options.
func BufferOptions(c config.Buffer) []engine.Option {
	return []engine.Option{
		engine.WithChunkSize(c.ChunkSize),
		engine.WithCacheBudget(c.CacheBytes),
		engine.WithCacheBlock(c.CacheBlock),
		engine.WithMaxUndo(c.MaxUndo),
		engine.WithMaxGap(c.MaxGap),
		engine.WithIteratorWindow(c.IteratorWindow),
	}
}

// Run initializes the screen, opens files and runs the control loop until
// quit is requested or ctx is done.
func (app *Application) Run(ctx context.Context, files ...string) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if err := app.screen.Init(); err != nil {
		return &ComponentError{Component: "screen", Action: "init", Err: err}
	}
	defer app.screen.Fini()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := app.start(ctx); err != nil {
		return err
	}
	defer app.stop()

	for _, path := range files {
		if _, err := app.Open(path); err != nil {
			app.notify(err.Error())
		}
	}
	if app.docs.Len() == 0 {
		if _, err := app.NewScratch(); err != nil {
			return err
		}
	}
	go app.pollEvents()

	ticker := time.NewTicker(app.cfg.FrameInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := app.tick(); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// IsRunning returns true if the application is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// start launches the workers.
func (app *Application) start(ctx context.Context) error {
	app.ctx = ctx
	if err := app.filePool.Start(ctx); err != nil {
		return &ComponentError{Component: "fileio", Action: "start", Err: err}
	}
	if err := app.lspPool.Start(ctx); err != nil {
		return &ComponentError{Component: "lsp", Action: "start", Err: err}
	}
	if app.watcher != nil {
		app.watcher.Start(ctx)
	}
	app.lastGC = time.Now()
	return nil
}

// stop shuts the workers down in reverse order.
func (app *Application) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app.stopServers(ctx)
	if err := app.lspPool.Stop(ctx); err != nil && !errors.Is(err, bridge.ErrNotRunning) {
		app.log.Warn("lsp pool stop", "err", err)
	}
	if err := app.filePool.Stop(ctx); err != nil && !errors.Is(err, bridge.ErrNotRunning) {
		app.log.Warn("file pool stop", "err", err)
	}
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.log.Warn("watcher close", "err", err)
		}
	}
	app.bridge.Close()
}

// pollEvents forwards terminal events to the loop until the screen is
// finalized.
func (app *Application) pollEvents() {
	for {
		ev := app.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case app.events <- ev:
		default:
			app.metrics.droppedInput()
		}
	}
}

// tick runs one frame: input, worker results, LSP sync, collection and
// rendering. It returns ErrQuit once quit was requested.
func (app *Application) tick() (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &RecoveredPanicError{Value: r, Stack: string(debug.Stack())}
			app.log.Error("frame panicked", "err", err)
		}
		app.metrics.frame(time.Since(start), app.cfg.FrameInterval())
	}()

input:
	for {
		select {
		case ev := <-app.events:
			app.handleEvent(ev)
		default:
			break input
		}
	}
	if app.quit {
		return ErrQuit
	}

	app.bridge.DrainFrame(app.handleMessage)
	app.flushChanges()
	if time.Since(app.lastGC) >= app.cfg.Editor.GCInterval.Std() {
		app.collect()
	}
	app.render()
	return nil
}

func (app *Application) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		app.handleKey(ev)
	case *tcell.EventResize:
		app.screen.Sync()
	}
}

// collect releases history no undo step or iterator can reach.
func (app *Application) collect() {
	app.lastGC = time.Now()
	for _, doc := range app.docs.All() {
		st := doc.Buffer.GC()
		app.metrics.collected(st.Events)
		if st.Events > 0 || st.Snapshots > 0 {
			app.log.Debug("collected", "doc", doc.Name, "events", st.Events, "snapshots", st.Snapshots)
		}
	}
}

func (app *Application) render() {
	frame := view.Frame{Message: app.message}
	for _, c := range bridge.Categories() {
		if app.bridge.Status(c).Degraded {
			frame.Degraded = append(frame.Degraded, c.String())
		}
	}
	if doc := app.docs.Active(); doc != nil {
		frame.Buffer = doc.Buffer
		frame.Name = doc.Name
		if doc.loading {
			frame.Name += " (loading)"
		}
		frame.Highlights = app.highlights(doc)
	}
	app.view.Render(frame)
}

// notify shows msg on the status line until the next key press.
func (app *Application) notify(msg string) {
	app.message = msg
}

func (app *Application) notifyf(format string, args ...any) {
	app.notify(fmt.Sprintf(format, args...))
}

// Documents returns the open documents.
func (app *Application) Documents() *Documents {
	return app.docs
}

// Bridge returns the bridge between the loop and its workers.
func (app *Application) Bridge() *bridge.Bridge {
	return app.bridge
}

// Message returns the text currently shown on the status line.
func (app *Application) Message() string {
	return app.message
}

// Open opens path, or activates it when already open. The content arrives
// asynchronously; the document reports Loading until then.
func (app *Application) Open(path string) (*Document, error) {
	doc, created, err := app.docs.Create(path)
	if err != nil {
		return nil, &OperationError{Op: "open", Target: path, Err: err}
	}
	if !created {
		return doc, nil
	}
	app.bridge.OpenBuffer(doc.ID)
	doc.loading = true
	if _, err := app.files.Open(doc.ID, doc.Path); err != nil {
		app.bridge.CancelBuffer(doc.ID)
		_ = app.docs.Remove(doc.ID)
		return nil, &OperationError{Op: "open", Target: path, Err: err}
	}
	app.register(doc)
	return doc, nil
}

// NewScratch creates an empty document with no file.
func (app *Application) NewScratch() (*Document, error) {
	doc, err := app.docs.Scratch()
	if err != nil {
		return nil, &OperationError{Op: "new", Err: err}
	}
	app.bridge.OpenBuffer(doc.ID)
	app.register(doc)
	return doc, nil
}

func (app *Application) register(doc *Document) {
	app.metrics.documents(app.docs.Len())
	if app.registry == nil {
		return
	}
	for _, c := range doc.cacheCollectors() {
		if err := app.registry.Register(c); err != nil {
			app.log.Warn("register cache metrics", "doc", doc.Name, "err", err)
		}
	}
}

// Save writes the active document. The result arrives through the bridge.
func (app *Application) Save() error {
	doc := app.docs.Active()
	switch {
	case doc == nil:
		return ErrNoActiveDocument
	case doc.IsScratch():
		return &OperationError{Op: "save", Target: doc.Name, Err: ErrNoFilePath}
	case doc.loading:
		return &OperationError{Op: "save", Target: doc.Name, Err: ErrLoading}
	case doc.Buffer.ReadOnly():
		return &OperationError{Op: "save", Target: doc.Name, Err: engine.ErrReadOnly}
	}
	if _, err := app.files.Save(doc.ID, doc.Path, doc.Buffer.Snapshot()); err != nil {
		return &OperationError{Op: "save", Target: doc.Name, Err: err}
	}
	return nil
}

// Close closes doc. A modified document is kept unless force is set.
// Results still in flight for it are dropped.
func (app *Application) Close(doc *Document, force bool) error {
	if doc == nil {
		return ErrNoActiveDocument
	}
	if doc.Modified() && !force {
		return &OperationError{Op: "close", Target: doc.Name, Err: ErrUnsavedChanges}
	}
	if n := app.bridge.CancelBuffer(doc.ID); n > 0 {
		app.log.Debug("cancelled requests", "doc", doc.Name, "count", n)
	}
	if app.watcher != nil && doc.Path != "" {
		app.watcher.Remove(doc.Path)
	}
	if doc.server != nil && doc.lspOpen {
		if err := doc.server.worker.Close(doc.Path); err != nil {
			app.log.Warn("lsp close", "doc", doc.Name, "err", err)
		}
	}
	if app.registry != nil {
		for _, c := range doc.collectors {
			app.registry.Unregister(c)
		}
	}
	if err := app.docs.Remove(doc.ID); err != nil {
		return &OperationError{Op: "close", Target: doc.Name, Err: err}
	}
	app.metrics.documents(app.docs.Len())
	return nil
}

// Quit requests the loop to stop after the current frame. It refuses while
// documents have unsaved changes unless force is set.
func (app *Application) Quit(force bool) error {
	if !force && app.docs.HasDirty() {
		return ErrUnsavedChanges
	}
	app.quit = true
	return nil
}
