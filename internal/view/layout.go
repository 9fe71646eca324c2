package view

import (
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// cluster is one grapheme cluster laid out on a screen row.
type cluster struct {
	text  string // what to draw
	off   int    // byte offset within the line
	size  int    // bytes consumed from the line
	col   int    // display column
	width int    // display columns taken
}

// layoutLine splits line into grapheme clusters and assigns display
// columns. Tabs expand to the next tab stop. Control bytes and invalid
// UTF-8 are drawn as replacement glyphs one column wide.
func layoutLine(line []byte, tabWidth int, fn func(c cluster) bool) int {
	if tabWidth < 1 {
		tabWidth = 1
	}
	s := string(line)
	state := -1
	col, off := 0, 0
	for len(s) > 0 {
		var raw string
		var w int
		raw, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
		c := cluster{text: raw, off: off, size: len(raw), col: col, width: w}

		r, size := utf8.DecodeRuneInString(raw)
		switch {
		case raw == "\t":
			c.text = " "
			c.width = tabWidth - col%tabWidth
		case r == utf8.RuneError && size <= 1:
			c.text = "�"
			c.width = 1
		case r < 0x20 || r == 0x7f:
			c.text = "?"
			c.width = 1
		}
		if !fn(c) {
			return col
		}
		off += c.size
		col += c.width
	}
	return col
}

// Column returns the display column of the byte column col in line.
// Columns inside a cluster map to the cluster's start; columns past the
// end continue one display column per byte.
func Column(line []byte, col, tabWidth int) int {
	if col <= 0 {
		return 0
	}
	result := -1
	end := layoutLine(line, tabWidth, func(c cluster) bool {
		if c.off+c.size > col {
			result = c.col
			return false
		}
		return true
	})
	if result >= 0 {
		return result
	}
	return end + col - len(line)
}

// ByteColumn returns the byte column of the cluster drawn at display
// column col in line, or len(line) when col is past the end.
func ByteColumn(line []byte, col, tabWidth int) int {
	if col <= 0 {
		return 0
	}
	result := len(line)
	layoutLine(line, tabWidth, func(c cluster) bool {
		if c.col+c.width > col {
			result = c.off
			return false
		}
		return true
	})
	return result
}

// Width returns the display width of s without tab expansion.
func Width(s string) int {
	return uniseg.StringWidth(s)
}
