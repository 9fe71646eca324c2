package lsp

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tidwall/gjson"
)

// DocumentURI is a file:// URI naming a document.
type DocumentURI string

// Position is a zero-based line and UTF-16 column.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     DocumentURI `json:"uri"`
	Version int         `json:"version"`
}

// TextDocumentItem carries a whole document on didOpen.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentContentChangeEvent is one edit of a didChange
// notification. A nil Range replaces the whole document with Text.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// ProgramInfo names a client or server during the handshake.
type ProgramInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeParams struct {
	ProcessID    int                `json:"processId"`
	RootURI      DocumentURI        `json:"rootUri,omitempty"`
	ClientInfo   *ProgramInfo       `json:"clientInfo,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ProgramInfo       `json:"serverInfo,omitempty"`
}

// ClientCapabilities declares document synchronization with save
// notifications, versioned diagnostics and UTF-16 positions. Nothing else
// is requested from servers.
type ClientCapabilities struct {
	TextDocument struct {
		Synchronization struct {
			DidSave bool `json:"didSave"`
		} `json:"synchronization"`
		PublishDiagnostics struct {
			VersionSupport bool `json:"versionSupport"`
		} `json:"publishDiagnostics"`
	} `json:"textDocument"`
	General struct {
		PositionEncodings []string `json:"positionEncodings"`
	} `json:"general"`
}

// DefaultClientCapabilities returns the capabilities sent on initialize.
func DefaultClientCapabilities() ClientCapabilities {
	var c ClientCapabilities
	c.TextDocument.Synchronization.DidSave = true
	c.TextDocument.PublishDiagnostics.VersionSupport = true
	c.General.PositionEncodings = []string{"utf-16"}
	return c
}

// ServerCapabilities keeps the raw textDocumentSync member, which servers
// send either as a number or as an options object.
type ServerCapabilities struct {
	PositionEncoding string          `json:"positionEncoding,omitempty"`
	TextDocumentSync json.RawMessage `json:"textDocumentSync,omitempty"`
}

type TextDocumentSyncKind int

const (
	TextDocumentSyncKindNone        TextDocumentSyncKind = 0
	TextDocumentSyncKindFull        TextDocumentSyncKind = 1
	TextDocumentSyncKindIncremental TextDocumentSyncKind = 2
)

// SyncKind reports how the server wants document changes. An options
// object without a change member, or anything unrecognized, means full
// synchronization.
func (caps ServerCapabilities) SyncKind() TextDocumentSyncKind {
	if len(caps.TextDocumentSync) == 0 {
		return TextDocumentSyncKindNone
	}
	v := gjson.ParseBytes(caps.TextDocumentSync)
	switch {
	case v.Type == gjson.Number:
		return TextDocumentSyncKind(v.Int())
	case v.IsObject() && v.Get("change").Type == gjson.Number:
		return TextDocumentSyncKind(v.Get("change").Int())
	case v.Type == gjson.Null:
		return TextDocumentSyncKindNone
	}
	return TextDocumentSyncKindFull
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// PublishDiagnosticsParams is the payload of
// textDocument/publishDiagnostics. Version is zero when the server does
// not report one.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

type DiagnosticSeverity int

const (
	DiagnosticSeverityError       DiagnosticSeverity = 1
	DiagnosticSeverityWarning     DiagnosticSeverity = 2
	DiagnosticSeverityInformation DiagnosticSeverity = 3
	DiagnosticSeverityHint        DiagnosticSeverity = 4
)

var severityNames = [...]string{"unknown", "error", "warning", "info", "hint"}

func (s DiagnosticSeverity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return severityNames[0]
	}
	return severityNames[s]
}

// FilePathToURI makes path absolute and returns its file URI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if runtime.GOOS == "windows" {
		p = "/" + p // C:/x becomes /C:/x
	}
	return DocumentURI((&url.URL{Scheme: "file", Path: p}).String())
}

// URIToFilePath is the inverse of FilePathToURI. URIs of other schemes
// come back unchanged.
func URIToFilePath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	p := u.Path
	if runtime.GOOS == "windows" {
		p = strings.TrimPrefix(p, "/")
	}
	return filepath.FromSlash(p)
}

var languageIDs = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".ts":   "typescript",
	".js":   "javascript",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
}

// DetectLanguageID guesses the languageId of path from its extension.
func DetectLanguageID(path string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}
