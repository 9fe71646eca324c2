package app

import (
	"errors"
	"fmt"
)

var (
	// ErrQuit is returned by a frame once the user has asked to quit.
	ErrQuit = errors.New("quit requested")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNoActiveDocument is returned when a command needs a document and
	// none is open.
	ErrNoActiveDocument = errors.New("no active document")

	// ErrDocumentNotFound is returned for an id that names no open document.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnsavedChanges is returned when closing or quitting would discard
	// edits.
	ErrUnsavedChanges = errors.New("unsaved changes")

	// ErrNoFilePath is returned when saving a scratch document.
	ErrNoFilePath = errors.New("document has no file path")

	// ErrLoading is returned when editing a document whose file has not
	// been read yet.
	ErrLoading = errors.New("document is still loading")
)

// OperationError is a failed user command on one document. Its message is
// shown on the status line, so it stays short.
type OperationError struct {
	Op     string
	Target string // document name or path; may be empty
	Err    error
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ComponentError represents a failure to bring up a component.
type ComponentError struct {
	Component string
	Action    string
	Err       error
}

func (e *ComponentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
}

func (e *ComponentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RecoveredPanicError wraps a panic raised while processing a frame. Error
// includes the stack, so it belongs in the log rather than on screen.
type RecoveredPanicError struct {
	Value any
	Stack string
}

func (e *RecoveredPanicError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stack != "" {
		return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}
