package engine

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Point is a 0-based line and byte column.
type Point struct {
	Line   int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("(%d:%d)", p.Line, p.Column)
}

// PointUTF16 is a 0-based line and a column in UTF-16 code units, as used
// by the language server protocol.
type PointUTF16 struct {
	Line   int
	Column int
}

func (p PointUTF16) String() string {
	return fmt.Sprintf("(%d:%d utf16)", p.Line, p.Column)
}

// utf16Len counts UTF-16 code units in b.
func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		n += runeUnits(r)
	}
	return n
}

// byteColumnFromUTF16 returns the byte offset in line reached after col
// UTF-16 code units, clamped to the line.
func byteColumnFromUTF16(line []byte, col int) int {
	units, i := 0, 0
	for i < len(line) && units < col {
		r, size := utf8.DecodeRune(line[i:])
		units += runeUnits(r)
		i += size
	}
	return i
}

func runeUnits(r rune) int {
	return max(utf16.RuneLen(r), 1)
}
