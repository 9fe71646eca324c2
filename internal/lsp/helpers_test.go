package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type rpcMsg struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError       `json:"error,omitempty"`
}

// fakeServer speaks the base protocol on the far side of two pipes. It
// answers initialize and shutdown, fails methods under "fail/", and
// records everything else it receives.
type fakeServer struct {
	in   *bufio.Reader
	out  *io.PipeWriter
	inR  *io.PipeReader
	msgs chan rpcMsg
}

// newPipes returns a fake server and the client-side reader, writer and
// closer.
func newPipes(t *testing.T) (*fakeServer, io.Reader, io.WriteCloser) {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	s := &fakeServer{in: bufio.NewReader(c2sR), out: s2cW, inR: c2sR, msgs: make(chan rpcMsg, 64)}
	go s.run()
	t.Cleanup(func() {
		c2sW.Close()
		s2cW.Close()
	})
	return s, s2cR, c2sW
}

func (s *fakeServer) run() {
	for {
		data, err := readFrame(s.in)
		if err != nil {
			return
		}
		var m rpcMsg
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		switch {
		case m.Method == "initialize":
			s.reply(m.ID, map[string]any{
				"capabilities": map[string]any{"textDocumentSync": 2},
				"serverInfo":   map[string]any{"name": "fake", "version": "1"},
			})
		case strings.HasPrefix(m.Method, "fail/"):
			_ = writeFrame(s.out, map[string]any{
				"jsonrpc": "2.0",
				"id":      m.ID,
				"error":   ResponseError{Code: CodeMethodNotFound, Message: "method not found"},
			})
		case m.Method == "echo":
			s.reply(m.ID, m.Params)
		case m.Method == "shutdown":
			s.reply(m.ID, nil)
		case m.Method == "silent":
		default:
			s.msgs <- m
		}
	}
}

func (s *fakeServer) reply(id json.RawMessage, result any) {
	_ = writeFrame(s.out, map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *fakeServer) notify(method string, params any) {
	_ = writeFrame(s.out, map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

// next returns the next recorded message with the given method.
func (s *fakeServer) next(t *testing.T, method string) rpcMsg {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-s.msgs:
			if m.Method == method {
				return m
			}
		case <-timeout:
			t.Fatalf("no %s message", method)
			return rpcMsg{}
		}
	}
}

// crash ends the server's output as if the process died.
func (s *fakeServer) crash() {
	s.out.Close()
}

func connectClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	s, r, w := newPipes(t)
	c := NewClient(ServerConfig{Command: "fake", LanguageID: "go", Timeout: 2 * time.Second}, nil)
	if err := c.Connect(context.Background(), r, w, t.TempDir()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, s
}
