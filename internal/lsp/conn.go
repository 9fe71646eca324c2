package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// Handler receives a server notification. Handlers run on the read loop
// in arrival order and must not block.
type Handler func(method string, params json.RawMessage)

// Conn is a JSON-RPC 2.0 connection framed by the LSP base protocol: every
// message is a JSON body preceded by a Content-Length header.
type Conn struct {
	r *bufio.Reader
	w io.WriteCloser

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      int64
	calls    map[int64]chan reply
	handlers map[string]Handler

	closing atomic.Bool
	closed  chan struct{}
	done    chan struct{}
	err     error
}

// envelope is every message the client writes: requests, notifications
// and replies to server requests.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    *ResponseError
}

var errNoLength = errors.New("lsp: frame without Content-Length")

// NewConn returns a connection reading r and writing w. Close closes w.
func NewConn(r io.Reader, w io.WriteCloser) *Conn {
	return &Conn{
		r:        bufio.NewReaderSize(r, 64<<10),
		w:        w,
		calls:    make(map[int64]chan reply),
		handlers: make(map[string]Handler),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the read loop until the peer goes away or Close is called.
func (c *Conn) Start() {
	go c.read()
}

// Handle routes notifications named method to h. The method "*" catches
// notifications with no handler of their own.
func (c *Conn) Handle(method string, h Handler) {
	c.mu.Lock()
	c.handlers[method] = h
	c.mu.Unlock()
}

// Done is closed when the read loop stops.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err waits for the read loop and returns why it stopped, or nil after
// Close.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Close stops accepting calls and closes the writer. Pending calls fail
// with ErrClosed.
func (c *Conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	close(c.closed)
	return c.w.Close()
}

// Call sends a request and decodes the result into result, which may be
// nil.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	if c.closing.Load() {
		return ErrClosed
	}
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.calls[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
	}()

	msg := envelope{JSONRPC: "2.0", ID: json.RawMessage(strconv.FormatInt(id, 10)), Method: method, Params: params}
	if err := c.write(msg); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case <-c.done:
		return ErrServerExited
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if result == nil || len(r.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.result, result); err != nil {
			return fmt.Errorf("lsp: decode %s result: %w", method, err)
		}
		return nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	if c.closing.Load() {
		return ErrClosed
	}
	return c.write(envelope{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Conn) write(msg envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("lsp: encode %s: %w", msg.Method, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("lsp: write: %w", err)
	}
	if _, err := c.w.Write(body); err != nil {
		return fmt.Errorf("lsp: write: %w", err)
	}
	return nil
}

func (c *Conn) read() {
	defer close(c.done)
	for {
		body, err := readFrame(c.r)
		switch {
		case err == nil:
			c.dispatch(body)
		case errors.Is(err, errNoLength):
		case c.closing.Load():
			return
		default:
			c.err = fmt.Errorf("%w: %w", ErrServerExited, err)
			return
		}
	}
}

// readFrame reads one message body. Header names are case-insensitive and
// headers other than Content-Length are ignored.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ":")
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
				length = n
			}
		}
	}
	if length < 0 {
		return nil, errNoLength
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// dispatch classifies a message by which members it has. Only the parts a
// route needs are decoded.
func (c *Conn) dispatch(body []byte) {
	if !gjson.ValidBytes(body) {
		return
	}
	m := gjson.GetManyBytes(body, "id", "method", "params", "error")
	id, method, params, rpcErr := m[0], m[1], m[2], m[3]
	switch {
	case id.Exists() && method.Exists():
		c.answer(id, method.String(), params)
	case id.Exists():
		r := reply{result: json.RawMessage(gjson.GetBytes(body, "result").Raw)}
		if rpcErr.Exists() {
			r.err = &ResponseError{Code: int(rpcErr.Get("code").Int()), Message: rpcErr.Get("message").String()}
		}
		c.mu.Lock()
		ch, ok := c.calls[id.Int()]
		delete(c.calls, id.Int())
		c.mu.Unlock()
		if ok {
			ch <- r
		}
	case method.Exists():
		c.mu.Lock()
		h, ok := c.handlers[method.String()]
		if !ok {
			h = c.handlers["*"]
		}
		c.mu.Unlock()
		if h != nil {
			h(method.String(), json.RawMessage(params.Raw))
		}
	}
}

// answer replies to a request from the server. The client exposes no
// settings, so configuration requests get one null per item and every
// other request a null result.
func (c *Conn) answer(id gjson.Result, method string, params gjson.Result) {
	result := json.RawMessage("null")
	if method == "workspace/configuration" {
		n := len(params.Get("items").Array())
		result = json.RawMessage("[" + strings.TrimSuffix(strings.Repeat("null,", n), ",") + "]")
	}
	_ = c.write(envelope{JSONRPC: "2.0", ID: json.RawMessage(id.Raw), Result: result})
}
