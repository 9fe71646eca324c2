package view

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/engine/cursor"
)

func newScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("")
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetSize(w, h)
	t.Cleanup(s.Fini)
	return s
}

func row(s tcell.Screen, y int) string {
	w, _ := s.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := s.GetContent(x, y) //nolint:staticcheck
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

func newBuffer(t *testing.T, s string) *engine.VirtualBuffer {
	t.Helper()
	vb, err := engine.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return vb
}

func moveCursor(t *testing.T, vb *engine.VirtualBuffer, offset int64) {
	t.Helper()
	if !vb.SetCursor(vb.Cursors()[0].ID, cursor.New(offset)) {
		t.Fatal("SetCursor failed")
	}
}

func TestColumn(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		byteCol int
		want    int
	}{
		{"ascii", "hello", 3, 3},
		{"tab", "\tx", 1, 4},
		{"tab mid stop", "ab\tx", 3, 4},
		{"wide", "世界x", 6, 4},
		{"inside cluster", "é", 1, 0},
		{"combining", "e\u0301x", 3, 1},
		{"past end", "ab", 4, 4},
		{"control", "a\x01b", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Column([]byte(tt.line), tt.byteCol, 4); got != tt.want {
				t.Errorf("Column(%q, %d) = %d, want %d", tt.line, tt.byteCol, got, tt.want)
			}
		})
	}
}

func TestByteColumn(t *testing.T) {
	tests := []struct {
		line string
		col  int
		want int
	}{
		{"hello", 2, 2},
		{"\tx", 2, 0},
		{"\tx", 4, 1},
		{"世界x", 1, 0},
		{"世界x", 2, 3},
		{"ab", 9, 2},
	}
	for _, tt := range tests {
		if got := ByteColumn([]byte(tt.line), tt.col, 4); got != tt.want {
			t.Errorf("ByteColumn(%q, %d) = %d, want %d", tt.line, tt.col, got, tt.want)
		}
	}
}

func TestRenderLines(t *testing.T) {
	s := newScreen(t, 24, 5)
	v := New(s)
	vb := newBuffer(t, "first\n\tsecond\n世界x\n")

	v.Render(Frame{Buffer: vb, Name: "demo.txt"})

	if got := row(s, 0); got != "first" {
		t.Errorf("row 0 = %q", got)
	}
	if got := row(s, 1); got != "    second" {
		t.Errorf("row 1 = %q", got)
	}
	if r, _, _, _ := s.GetContent(4, 2); r != 'x' { //nolint:staticcheck
		t.Errorf("cell after wide clusters = %q", r)
	}
	if got := row(s, 3); got != "" {
		t.Errorf("row 3 = %q, want empty last line", got)
	}
	if !strings.HasPrefix(row(s, 4), "demo.txt  Ln 1, Col 1") {
		t.Errorf("status = %q", row(s, 4))
	}
}

func TestRenderFiller(t *testing.T) {
	s := newScreen(t, 10, 4)
	v := New(s)
	v.Render(Frame{Buffer: newBuffer(t, "one")})
	if got := row(s, 1); got != "~" {
		t.Errorf("row 1 = %q", got)
	}
	if got := row(s, 3); !strings.HasPrefix(got, "[scratch]") {
		t.Errorf("status = %q", got)
	}
}

func TestRenderScrollsToCursor(t *testing.T) {
	s := newScreen(t, 20, 4)
	v := New(s)
	var text strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&text, "line %d\n", i)
	}
	vb := newBuffer(t, text.String())

	off, _ := vb.ByteOfLine(7)
	moveCursor(t, vb, off+2)
	v.Render(Frame{Buffer: vb})

	if top, _ := v.Scroll(); top != 5 {
		t.Errorf("top = %d, want 5", top)
	}
	if got := row(s, 0); got != "line 5" {
		t.Errorf("row 0 = %q", got)
	}
	x, y, visible := s.GetCursor()
	if !visible || x != 2 || y != 2 {
		t.Errorf("cursor = (%d, %d, %v), want (2, 2, true)", x, y, visible)
	}

	moveCursor(t, vb, 0)
	v.Render(Frame{Buffer: vb})
	if top, _ := v.Scroll(); top != 0 {
		t.Errorf("top after moving up = %d", top)
	}
}

func TestRenderScrollsHorizontally(t *testing.T) {
	s := newScreen(t, 5, 3)
	v := New(s)
	vb := newBuffer(t, "abcdefghij\n")
	moveCursor(t, vb, 8)
	v.Render(Frame{Buffer: vb})

	if _, left := v.Scroll(); left != 4 {
		t.Errorf("left = %d, want 4", left)
	}
	if got := row(s, 0); got != "efghi" {
		t.Errorf("row 0 = %q", got)
	}
}

func TestRenderHighlights(t *testing.T) {
	s := newScreen(t, 20, 3)
	theme := DefaultTheme()
	v := New(s, WithTheme(theme))
	vb := newBuffer(t, "abc def\n")

	v.Render(Frame{Buffer: vb, Highlights: []Highlight{
		{Start: 4, End: 7, Style: theme.Error},
		{Start: 7, End: 7, Style: theme.Warning},
	}})

	tests := []struct {
		x    int
		want tcell.Style
	}{
		{0, theme.Text},
		{4, theme.Error},
		{6, theme.Error},
		{7, theme.Warning},
	}
	for _, tt := range tests {
		if _, _, got, _ := s.GetContent(tt.x, 0); got != tt.want { //nolint:staticcheck
			t.Errorf("style at %d = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestRenderSecondaryCursors(t *testing.T) {
	s := newScreen(t, 20, 3)
	theme := DefaultTheme()
	v := New(s, WithTheme(theme))
	vb := newBuffer(t, "abcdef\n")
	vb.AddCursor(cursor.New(3))

	v.Render(Frame{Buffer: vb})
	if _, _, got, _ := s.GetContent(3, 0); got != theme.Cursor { //nolint:staticcheck
		t.Errorf("secondary cursor style = %v", got)
	}
	if _, _, got, _ := s.GetContent(0, 0); got != theme.Text { //nolint:staticcheck
		t.Errorf("primary cursor cell style = %v", got)
	}
}

func TestRenderStatus(t *testing.T) {
	s := newScreen(t, 60, 2)
	v := New(s)
	vb := newBuffer(t, "x\n")
	if _, err := vb.InsertAtCursors([]byte("ab")); err != nil {
		t.Fatal(err)
	}

	v.Render(Frame{Buffer: vb, Name: "main.go", Message: "saved", Degraded: []string{"lsp"}})
	got := row(s, 1)
	for _, want := range []string{"main.go [+]", "Ln 1, Col 3", "saved", "lsp offline"} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q missing %q", got, want)
		}
	}
}

func TestRenderStatusKeepsDegradedLabel(t *testing.T) {
	s := newScreen(t, 40, 2)
	v := New(s)
	msg := "lsp worker /tmp/TestLanguageServer/no-such-server stopped"
	v.Render(Frame{Buffer: newBuffer(t, "x\n"), Name: "main.go", Message: msg, Degraded: []string{"lsp"}})

	got := row(s, 1)
	if !strings.HasSuffix(got, "lsp offline") {
		t.Errorf("status = %q, want degraded label at the right", got)
	}
	if !strings.HasPrefix(got, "main.go  Ln 1, Col 1  lsp") {
		t.Errorf("status = %q, want truncated message after the position", got)
	}
}

func TestRenderNoBuffer(t *testing.T) {
	s := newScreen(t, 10, 3)
	New(s).Render(Frame{})
	if _, _, visible := s.GetCursor(); visible {
		t.Error("cursor visible without a buffer")
	}
	if got := row(s, 0); got != "~" {
		t.Errorf("row 0 = %q", got)
	}
}

func BenchmarkRender(b *testing.B) {
	s := tcell.NewSimulationScreen("")
	if err := s.Init(); err != nil {
		b.Fatal(err)
	}
	defer s.Fini()
	s.SetSize(120, 50)
	vb, err := engine.NewFromString(strings.Repeat("func main() {\tprintln(\"héllo, 世界\")}\n", 5000))
	if err != nil {
		b.Fatal(err)
	}
	v := New(s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Render(Frame{Buffer: vb})
	}
}
