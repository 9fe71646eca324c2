// Package view draws buffers on a terminal through tcell.
//
// A View renders one Frame at a time: the visible lines of a buffer read
// through a registered engine.Iterator, highlights such as diagnostics
// and selections, and a status line. Display widths follow grapheme
// clusters as measured by uniseg, with tabs expanded to the configured
// tab stops.
package view
