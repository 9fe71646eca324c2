package lsp

import (
	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/engine/editlog"
)

// ChangeEvent converts an applied buffer change into an incremental
// content change. Positions come from the content before the edit. It
// reports false for sparse inserts, which the server only learns about
// through a full resync. Removing a gap is an ordinary range delete.
func ChangeEvent(c engine.Change) (TextDocumentContentChangeEvent, bool) {
	if c.Event.Kind == editlog.Insert && c.Event.Gap > 0 {
		return TextDocumentContentChangeEvent{}, false
	}
	r := &Range{
		Start: Position{Line: c.StartUTF16.Line, Character: c.StartUTF16.Column},
		End:   Position{Line: c.EndUTF16.Line, Character: c.EndUTF16.Column},
	}
	if c.Event.Kind == editlog.Delete {
		return TextDocumentContentChangeEvent{Range: r}, true
	}
	return TextDocumentContentChangeEvent{Range: r, Text: string(c.Event.Data)}, true
}

// FullChange replaces the whole document with text.
func FullChange(text string) TextDocumentContentChangeEvent {
	return TextDocumentContentChangeEvent{Text: text}
}
