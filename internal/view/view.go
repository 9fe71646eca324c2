package view

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/engine/cursor"
)

// Theme holds the styles the view draws with.
type Theme struct {
	Text      tcell.Style
	Filler    tcell.Style
	Selection tcell.Style
	Cursor    tcell.Style
	Status    tcell.Style
	Degraded  tcell.Style
	Error     tcell.Style
	Warning   tcell.Style
	Info      tcell.Style
}

// DefaultTheme returns the built-in styles.
func DefaultTheme() Theme {
	base := tcell.StyleDefault
	return Theme{
		Text:      base,
		Filler:    base.Foreground(tcell.ColorBlue),
		Selection: base.Reverse(true),
		Cursor:    base.Reverse(true),
		Status:    base.Reverse(true),
		Degraded:  base.Background(tcell.ColorMaroon).Foreground(tcell.ColorWhite),
		Error:     base.Underline(true).Foreground(tcell.ColorRed),
		Warning:   base.Underline(true).Foreground(tcell.ColorYellow),
		Info:      base.Underline(true),
	}
}

// Highlight styles the byte range [Start, End) of the buffer. An empty
// range styles the single cell at Start.
type Highlight struct {
	Start, End int64
	Style      tcell.Style
}

// Frame is everything drawn in one pass.
type Frame struct {
	Buffer     *engine.VirtualBuffer
	Name       string
	Message    string
	Degraded   []string
	Highlights []Highlight
}

// View draws a buffer and a status line on a tcell screen. The first
// cursor of the buffer is the terminal cursor and is kept on screen.
type View struct {
	mu       sync.Mutex
	screen   tcell.Screen
	theme    Theme
	tabWidth int
	top      int
	left     int
}

// Option configures a View.
type Option func(*View)

// WithTheme sets the styles.
func WithTheme(t Theme) Option {
	return func(v *View) { v.theme = t }
}

// WithTabWidth sets the distance between tab stops (default: 4).
func WithTabWidth(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.tabWidth = n
		}
	}
}

// New creates a view drawing on screen. The screen must be initialized.
func New(screen tcell.Screen, opts ...Option) *View {
	v := &View{screen: screen, theme: DefaultTheme(), tabWidth: 4}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Screen returns the screen the view draws on.
func (v *View) Screen() tcell.Screen {
	return v.screen
}

// TabWidth returns the distance between tab stops.
func (v *View) TabWidth() int {
	return v.tabWidth
}

// Rows returns the number of text rows below which the status line sits.
func (v *View) Rows() int {
	_, h := v.screen.Size()
	return max(h-1, 0)
}

// Scroll returns the first visible line and the first visible display
// column.
func (v *View) Scroll() (top, left int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top, v.left
}

// Reset scrolls back to the start of the buffer.
func (v *View) Reset() {
	v.mu.Lock()
	v.top, v.left = 0, 0
	v.mu.Unlock()
}

// mark is a styled byte range.
type mark struct {
	start, end int64
	style      tcell.Style
}

// Render draws f and shows the result.
func (v *View) Render(f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.screen.Clear()
	w, h := v.screen.Size()
	if w <= 0 || h <= 0 {
		return
	}
	rows := h - 1
	if f.Buffer == nil {
		for y := 0; y < rows; y++ {
			v.put(0, y, "~", v.theme.Filler)
		}
		v.drawStatus(f, engine.Point{}, w, h-1)
		v.screen.HideCursor()
		v.screen.Show()
		return
	}

	vb := f.Buffer
	entries := vb.Cursors()
	primary := cursor.New(0)
	if len(entries) > 0 {
		primary = entries[0].Cursor
	}
	pt := vb.OffsetToPoint(primary.Offset)
	cur, _ := vb.Line(pt.Line)
	ccol := Column(cur, pt.Column, v.tabWidth)
	v.scroll(pt.Line, ccol, rows, w, vb.LineCount())

	v.drawText(vb, v.marks(f, entries), rows, w)
	v.drawStatus(f, pt, w, h-1)
	if y, x := pt.Line-v.top, ccol-v.left; y >= 0 && y < rows && x >= 0 && x < w {
		v.screen.ShowCursor(x, y)
	} else {
		v.screen.HideCursor()
	}
	v.screen.Show()
}

// scroll moves the viewport the least distance that puts the cursor at
// (line, col) on screen.
func (v *View) scroll(line, col, rows, cols, lines int) {
	if rows > 0 {
		if line < v.top {
			v.top = line
		} else if line >= v.top+rows {
			v.top = line - rows + 1
		}
	}
	v.top = min(v.top, max(lines-1, 0))
	if cols > 0 {
		if col < v.left {
			v.left = col
		} else if col >= v.left+cols {
			v.left = col - cols + 1
		}
	}
}

// marks collects highlights, selections and secondary cursors. Later marks
// win where they overlap.
func (v *View) marks(f Frame, entries []cursor.Entry) []mark {
	ms := make([]mark, 0, len(f.Highlights)+len(entries))
	for _, hl := range f.Highlights {
		ms = append(ms, mark{hl.Start, max(hl.End, hl.Start+1), hl.Style})
	}
	for i, e := range entries {
		if e.Cursor.HasSelection() {
			start, end := e.Cursor.Selection()
			ms = append(ms, mark{start, end, v.theme.Selection})
		}
		if i > 0 {
			ms = append(ms, mark{e.Cursor.Offset, e.Cursor.Offset + 1, v.theme.Cursor})
		}
	}
	slices.SortStableFunc(ms, func(a, b mark) int {
		return cmp.Compare(a.start, b.start)
	})
	return ms
}

func (v *View) styleAt(ms []mark, off int64) tcell.Style {
	style := v.theme.Text
	for _, m := range ms {
		if m.start > off {
			break
		}
		if off < m.end {
			style = m.style
		}
	}
	return style
}

// drawText draws the visible lines. They are read with one iterator so
// the pass costs one line index lookup however many rows are drawn.
func (v *View) drawText(vb *engine.VirtualBuffer, ms []mark, rows, cols int) {
	start, _ := vb.ByteOfLine(v.top)
	it := vb.RegisterIterator(start)
	defer it.Close()

	lines := vb.LineCount()
	off := start
	for y := 0; y < rows; y++ {
		if v.top+y >= lines {
			v.put(0, y, "~", v.theme.Filler)
			continue
		}
		line, _ := it.NextLine()
		end := layoutLine(line, v.tabWidth, func(c cluster) bool {
			x := c.col - v.left
			if x >= cols {
				return false
			}
			if x >= 0 && c.width > 0 && x+c.width <= cols {
				v.put(x, y, c.text, v.styleAt(ms, off+int64(c.off)))
			}
			return true
		})
		eol := off + int64(len(line))
		if style := v.styleAt(ms, eol); style != v.theme.Text {
			if x := end - v.left; x >= 0 && x < cols {
				v.put(x, y, " ", style)
			}
		}
		off = eol + 1
	}
}

// drawStatus fills row y with the file name, the modified flag and the
// cursor position on the left, and the message and degraded worker
// categories on the right. The degraded label claims its columns first;
// the message is truncated into what is left.
func (v *View) drawStatus(f Frame, pt engine.Point, cols, y int) {
	for x := 0; x < cols; x++ {
		v.screen.SetContent(x, y, ' ', nil, v.theme.Status)
	}
	limit := cols
	if len(f.Degraded) > 0 {
		degraded := " " + strings.Join(f.Degraded, ",") + " offline "
		limit = max(cols-uniseg.StringWidth(degraded), 0)
		v.text(limit, y, cols, degraded, v.theme.Degraded)
	}

	name := f.Name
	if name == "" {
		name = "[scratch]"
	}
	left := name
	if f.Buffer != nil {
		if f.Buffer.Modified() {
			left += " [+]"
		}
		if f.Buffer.ReadOnly() {
			left += " [ro]"
		}
		left += fmt.Sprintf("  Ln %d, Col %d", pt.Line+1, pt.Column+1)
	}
	x := v.text(0, y, limit, left, v.theme.Status)

	if f.Message == "" {
		return
	}
	rx := max(limit-uniseg.StringWidth(f.Message)-1, x+2)
	v.text(rx, y, limit-1, f.Message, v.theme.Status)
}

// text draws s from column x, clipped at limit, and returns the column
// after the last cluster drawn.
func (v *View) text(x, y, limit int, s string, style tcell.Style) int {
	state := -1
	for len(s) > 0 {
		var c string
		var w int
		c, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
		if x+w > limit {
			break
		}
		v.put(x, y, c, style)
		x += w
	}
	return x
}

func (v *View) put(x, y int, s string, style tcell.Style) {
	runes := []rune(s)
	if len(runes) == 0 {
		return
	}
	v.screen.SetContent(x, y, runes[0], runes[1:], style)
}
