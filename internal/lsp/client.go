package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/tessera/internal/logging"
)

// ServerConfig defines how to start a language server.
type ServerConfig struct {
	Command    string
	Args       []string
	LanguageID string

	// WorkDir is the working directory (defaults to the workspace root).
	WorkDir string

	// Timeout bounds initialize and shutdown (default: 10s).
	Timeout time.Duration
}

// Client is a connection to one language server. It tracks the version
// of every open document.
type Client struct {
	config ServerConfig
	log    *logging.Logger

	mu     sync.Mutex
	rpc    *Conn
	cmd    *exec.Cmd
	caps   ServerCapabilities
	info   *ProgramInfo
	docs   map[DocumentURI]int
	onDiag func(PublishDiagnosticsParams)

	started  atomic.Bool
	shutdown atomic.Bool
}

// NewClient creates a client that is not yet connected.
func NewClient(config ServerConfig, log *logging.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		config: config,
		log:    log.WithComponent("lsp").With("server", config.Command),
		docs:   make(map[DocumentURI]int),
	}
}

// Start launches the server process and performs the initialize
// handshake with root as the workspace.
func (c *Client) Start(ctx context.Context, root string) error {
	if c.started.Load() {
		return ErrAlreadyStarted
	}
	cmd := exec.Command(c.config.Command, c.config.Args...)
	cmd.Env = os.Environ()
	cmd.Dir = root
	if c.config.WorkDir != "" {
		cmd.Dir = c.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return &StartError{Command: c.config.Command, Err: err}
	}
	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()
	go func() {
		err := cmd.Wait()
		c.log.Info("server process exited", "err", err)
	}()

	return c.Connect(ctx, stdout, stdin, root)
}

// Connect performs the initialize handshake over r and w. w is closed on
// shutdown.
func (c *Client) Connect(ctx context.Context, r io.Reader, w io.WriteCloser, root string) error {
	if c.started.Swap(true) {
		return ErrAlreadyStarted
	}
	t := NewConn(r, w)
	t.Handle("textDocument/publishDiagnostics", c.handleDiagnostics)
	t.Handle("window/logMessage", func(_ string, params json.RawMessage) {
		c.log.Debug("server log", "message", string(params))
	})
	t.Start()

	c.mu.Lock()
	c.rpc = t
	c.mu.Unlock()

	params := InitializeParams{
		ProcessID:    os.Getpid(),
		Capabilities: DefaultClientCapabilities(),
		ClientInfo:   &ProgramInfo{Name: "tessera"},
	}
	if root != "" {
		params.RootURI = FilePathToURI(root)
	}

	ictx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	var result InitializeResult
	if err := t.Call(ictx, "initialize", params, &result); err != nil {
		t.Close()
		return &StartError{Command: c.config.Command, Err: fmt.Errorf("initialize: %w", err)}
	}
	if err := t.Notify("initialized", struct{}{}); err != nil {
		t.Close()
		return &StartError{Command: c.config.Command, Err: err}
	}

	c.mu.Lock()
	c.caps = result.Capabilities
	c.info = result.ServerInfo
	c.mu.Unlock()
	if result.ServerInfo != nil {
		c.log.Info("server ready", "name", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	}
	return nil
}

// OnDiagnostics sets the handler for published diagnostics. It runs on
// the connection's read loop.
func (c *Client) OnDiagnostics(fn func(PublishDiagnosticsParams)) {
	c.mu.Lock()
	c.onDiag = fn
	c.mu.Unlock()
}

func (c *Client) handleDiagnostics(_ string, params json.RawMessage) {
	var p PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		c.log.Warn("bad diagnostics", "err", err)
		return
	}
	c.mu.Lock()
	fn := c.onDiag
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Capabilities returns what the server announced on initialize.
func (c *Client) Capabilities() ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// ServerInfo returns the name the server gave on initialize, if any.
func (c *Client) ServerInfo() (ProgramInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return ProgramInfo{}, false
	}
	return *c.info, true
}

func (c *Client) conn() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil, ErrNotStarted
	}
	return c.rpc, nil
}

// DidOpen announces a newly opened document.
func (c *Client) DidOpen(path, languageID, text string) error {
	t, err := c.conn()
	if err != nil {
		return err
	}
	uri := FilePathToURI(path)
	c.mu.Lock()
	c.docs[uri] = 1
	c.mu.Unlock()
	return t.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	})
}

// DidChange sends changes for an open document and returns its new
// version.
func (c *Client) DidChange(path string, changes []TextDocumentContentChangeEvent) (int, error) {
	t, err := c.conn()
	if err != nil {
		return 0, err
	}
	uri := FilePathToURI(path)
	c.mu.Lock()
	v, ok := c.docs[uri]
	if ok {
		v++
		c.docs[uri] = v
	}
	c.mu.Unlock()
	if !ok {
		return 0, ErrDocumentNotOpen
	}
	return v, t.Notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: v},
		ContentChanges: changes,
	})
}

// DocumentVersion returns the version last sent for an open document.
func (c *Client) DocumentVersion(path string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.docs[FilePathToURI(path)]
	return v, ok
}

// DidSave tells the server an open document was written.
func (c *Client) DidSave(path string) error {
	t, err := c.conn()
	if err != nil {
		return err
	}
	return t.Notify("textDocument/didSave", DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: FilePathToURI(path)},
	})
}

// DidClose announces that a document was closed.
func (c *Client) DidClose(path string) error {
	t, err := c.conn()
	if err != nil {
		return err
	}
	uri := FilePathToURI(path)
	c.mu.Lock()
	_, ok := c.docs[uri]
	delete(c.docs, uri)
	c.mu.Unlock()
	if !ok {
		return ErrDocumentNotOpen
	}
	return t.Notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// Done is closed when the connection to the server ends.
func (c *Client) Done() <-chan struct{} {
	t, err := c.conn()
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.Done()
}

// Err returns why the connection ended. It is nil after Shutdown.
func (c *Client) Err() error {
	if c.shutdown.Load() {
		return nil
	}
	t, err := c.conn()
	if err != nil {
		return err
	}
	return t.Err()
}

// Shutdown asks the server to exit and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	t, err := c.conn()
	if err != nil {
		return err
	}
	if c.shutdown.Swap(true) {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	callErr := t.Call(sctx, "shutdown", nil, nil)
	_ = t.Notify("exit", nil)
	closeErr := t.Close()

	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd != nil && cmd.Process != nil && callErr != nil {
		_ = cmd.Process.Kill()
	}
	if callErr != nil {
		return callErr
	}
	return closeErr
}
