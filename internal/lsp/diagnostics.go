package lsp

import (
	"sort"

	"github.com/dshills/tessera/internal/engine"
)

// Diagnostics is the payload posted to the bridge when a server publishes
// diagnostics for an open document.
type Diagnostics struct {
	Path    string
	Version int
	Items   []Diagnostic
}

// Span is a diagnostic resolved to byte offsets in a buffer.
type Span struct {
	Start    int64
	End      int64
	Severity DiagnosticSeverity
	Source   string
	Message  string
}

// OffsetMapper converts LSP positions to byte offsets.
// *engine.VirtualBuffer implements it.
type OffsetMapper interface {
	UTF16ToOffset(p engine.PointUTF16) int64
}

// MapDiagnostics resolves items against m and returns them ordered by
// start offset. Positions past the end of a line or the buffer clamp.
func MapDiagnostics(m OffsetMapper, items []Diagnostic) []Span {
	spans := make([]Span, 0, len(items))
	for _, d := range items {
		start := m.UTF16ToOffset(engine.PointUTF16{Line: d.Range.Start.Line, Column: d.Range.Start.Character})
		end := m.UTF16ToOffset(engine.PointUTF16{Line: d.Range.End.Line, Column: d.Range.End.Character})
		if end < start {
			start, end = end, start
		}
		spans = append(spans, Span{
			Start:    start,
			End:      end,
			Severity: d.Severity,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})
	return spans
}
