// Package lsp keeps language servers in sync with open buffers.
//
// Conn implements the JSON-RPC base protocol with Content-Length
// framing. Client runs the initialize handshake and the text document
// synchronization notifications over it. Worker sits between the editor
// loop and a Client: document events are queued on a bridge pool and
// published diagnostics come back as bridge messages.
//
// Buffer changes are converted with ChangeEvent, which uses the pre-edit
// UTF-16 positions recorded on every engine.Change. Diagnostics are mapped
// back to byte offsets with MapDiagnostics:
//
//	spans := lsp.MapDiagnostics(vb, diags.Items)
//	for _, s := range spans {
//		highlight(s.Start, s.End, s.Severity)
//	}
package lsp
