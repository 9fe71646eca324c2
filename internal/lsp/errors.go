package lsp

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted      = errors.New("lsp: not connected")
	ErrAlreadyStarted  = errors.New("lsp: already connected")
	ErrClosed          = errors.New("lsp: connection closed")
	ErrServerExited    = errors.New("lsp: server exited")
	ErrDocumentNotOpen = errors.New("lsp: document not open")
)

// JSON-RPC error codes the client produces or inspects.
const (
	CodeMethodNotFound       = -32601
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeContentModified      = -32801
)

// ResponseError is the error member of a failed response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp: server replied %d: %s", e.Code, e.Message)
}

// StartError reports a server that could not be launched or initialized.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("lsp: start %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
