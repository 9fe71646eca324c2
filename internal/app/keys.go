package app

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/engine/cursor"
	"github.com/dshills/tessera/internal/view"
)

// Key bindings. Ctrl chords are commands; everything else edits the
// active document at every cursor, one undo group per key.
//
//	Ctrl-S save          Ctrl-Z undo         Ctrl-Y redo
//	Ctrl-W close         Ctrl-Q quit         Ctrl-N / Ctrl-P next / previous
//	Ctrl-C copy          Ctrl-X cut          Ctrl-V paste
//	Ctrl-D               select the next match of the primary selection
//	Alt-Up / Alt-Down    add a cursor above / below
//	Shift-arrows         extend the selection
//	Esc                  keep only the primary cursor
func (app *Application) handleKey(ev *tcell.EventKey) {
	app.metrics.key()
	app.message = ""
	confirm := app.confirm
	app.confirm = 0

	doc := app.docs.Active()
	switch ev.Key() {
	case tcell.KeyEnter:
		app.insert(doc, "\n")
		return
	case tcell.KeyTab:
		app.insert(doc, "\t")
		return
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		app.edit(doc, func(vb *engine.VirtualBuffer) (engine.Version, error) { return vb.DeleteBackward() })
		return
	case tcell.KeyDelete:
		app.edit(doc, func(vb *engine.VirtualBuffer) (engine.Version, error) { return vb.DeleteForward() })
		return
	case tcell.KeyEsc:
		app.collapse(doc)
		return
	case tcell.KeyLeft, tcell.KeyRight, tcell.KeyUp, tcell.KeyDown,
		tcell.KeyHome, tcell.KeyEnd, tcell.KeyPgUp, tcell.KeyPgDn:
		app.move(doc, ev.Key(), ev.Modifiers())
		return
	}

	if r, ok := chord(ev); ok {
		app.command(doc, r, confirm)
		return
	}
	if ev.Key() == tcell.KeyRune && ev.Modifiers()&(tcell.ModCtrl|tcell.ModAlt) == 0 {
		app.insert(doc, string(ev.Rune()))
	}
}

// chord returns the letter of a Ctrl chord.
func chord(ev *tcell.EventKey) (rune, bool) {
	k := ev.Key()
	if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return 'a' + rune(k-tcell.KeyCtrlA), true
	}
	if k == tcell.KeyRune && ev.Modifiers()&tcell.ModCtrl != 0 {
		return unicode.ToLower(ev.Rune()), true
	}
	return 0, false
}

func (app *Application) command(doc *Document, r, confirm rune) {
	switch r {
	case 's':
		if err := app.Save(); err != nil {
			app.notify(err.Error())
			return
		}
		app.notifyf("saving %s", doc.Name)
	case 'z':
		app.step(doc, "undo", func(vb *engine.VirtualBuffer) (engine.Version, bool, error) { return vb.Undo() })
	case 'y':
		app.step(doc, "redo", func(vb *engine.VirtualBuffer) (engine.Version, bool, error) { return vb.Redo() })
	case 'w':
		err := app.Close(doc, confirm == 'w')
		if errors.Is(err, ErrUnsavedChanges) {
			app.confirm = 'w'
			app.notify("unsaved changes, Ctrl-W again to discard")
			return
		}
		if err != nil {
			app.notify(err.Error())
			return
		}
		if app.docs.Len() == 0 {
			if _, err := app.NewScratch(); err != nil {
				app.notify(err.Error())
			}
		}
		app.view.Reset()
	case 'q':
		if err := app.Quit(confirm == 'q'); err != nil {
			app.confirm = 'q'
			app.notify("unsaved changes, Ctrl-Q again to quit")
		}
	case 'c':
		app.copySelection(doc)
	case 'x':
		app.cut(doc)
	case 'v':
		app.paste(doc)
	case 'd':
		app.addCursorAtNextMatch(doc)
	case 'n':
		app.docs.Cycle(1)
		app.view.Reset()
	case 'p':
		app.docs.Cycle(-1)
		app.view.Reset()
	}
}

func (app *Application) editable(doc *Document) bool {
	switch {
	case doc == nil:
		app.notify(ErrNoActiveDocument.Error())
		return false
	case doc.loading:
		app.notify(ErrLoading.Error())
		return false
	}
	return true
}

func (app *Application) edit(doc *Document, fn func(vb *engine.VirtualBuffer) (engine.Version, error)) {
	if !app.editable(doc) {
		return
	}
	if _, err := fn(doc.Buffer); err != nil {
		app.notify(err.Error())
	}
}

func (app *Application) insert(doc *Document, s string) {
	app.edit(doc, func(vb *engine.VirtualBuffer) (engine.Version, error) {
		return vb.InsertAtCursors([]byte(s))
	})
}

func (app *Application) step(doc *Document, name string, fn func(vb *engine.VirtualBuffer) (engine.Version, bool, error)) {
	if !app.editable(doc) {
		return
	}
	_, ok, err := fn(doc.Buffer)
	switch {
	case err != nil:
		app.notify(err.Error())
	case !ok:
		app.notifyf("nothing to %s", name)
	}
}

// copySelection puts the text of every selection on the clipboard, one
// selection per line. It reports whether anything was copied.
func (app *Application) copySelection(doc *Document) bool {
	if doc == nil {
		app.notify(ErrNoActiveDocument.Error())
		return false
	}
	text, err := doc.Buffer.SelectedText()
	switch {
	case err != nil:
		app.notify(err.Error())
		return false
	case len(text) == 0:
		app.notify("nothing selected")
		return false
	}
	app.clipboard = text
	app.notifyf("copied %d bytes", len(text))
	return true
}

// cut copies the selections and deletes them as one undo group.
func (app *Application) cut(doc *Document) {
	if !app.editable(doc) || !app.copySelection(doc) {
		return
	}
	if _, err := doc.Buffer.DeleteSelections(); err != nil {
		app.notify(err.Error())
		return
	}
	app.notifyf("cut %d bytes", len(app.clipboard))
}

// paste inserts the clipboard at every cursor, replacing selections.
func (app *Application) paste(doc *Document) {
	if len(app.clipboard) == 0 {
		app.notify("clipboard is empty")
		return
	}
	app.edit(doc, func(vb *engine.VirtualBuffer) (engine.Version, error) {
		return vb.InsertAtCursors(app.clipboard)
	})
}

// addCursorAtNextMatch selects the next occurrence of the primary
// selection with a new cursor. The search starts after the furthest
// selection so repeated presses walk forward through the matches.
func (app *Application) addCursorAtNextMatch(doc *Document) {
	if doc == nil {
		return
	}
	vb := doc.Buffer
	entries := vb.Cursors()
	if len(entries) == 0 || !entries[0].Cursor.HasSelection() {
		app.notify("no selection to match")
		return
	}
	start, end := entries[0].Cursor.Selection()
	pattern, err := vb.Read(start, end)
	if err != nil {
		app.notify(err.Error())
		return
	}
	from := end
	for _, e := range entries[1:] {
		if _, en := e.Cursor.Selection(); e.Cursor.HasSelection() {
			from = max(from, en)
		}
	}
	off, ok := vb.FindNext(pattern, from)
	if !ok {
		app.notify("no more matches")
		return
	}
	vb.AddCursor(cursor.NewSelection(off, off+int64(len(pattern))))
	app.notifyf("added cursor at match (%d)", len(vb.Cursors()))
}

// collapse drops every cursor but the primary and clears its selection.
func (app *Application) collapse(doc *Document) {
	if doc == nil {
		return
	}
	entries := doc.Buffer.Cursors()
	for i, e := range entries {
		if i == 0 {
			doc.Buffer.SetCursor(e.ID, e.Cursor.MoveTo(e.Cursor.Offset))
			continue
		}
		doc.Buffer.RemoveCursor(e.ID)
	}
}

// move applies a navigation key to every cursor. Alt with Up or Down adds
// a cursor instead of moving; Shift extends selections.
func (app *Application) move(doc *Document, k tcell.Key, mods tcell.ModMask) {
	if doc == nil {
		return
	}
	vb := doc.Buffer
	entries := vb.Cursors()
	if len(entries) == 0 {
		return
	}
	if mods&tcell.ModAlt != 0 && (k == tcell.KeyUp || k == tcell.KeyDown) {
		last := entries[len(entries)-1].Cursor.Offset
		if off, ok := app.target(vb, last, k); ok {
			vb.AddCursor(cursor.New(off))
		}
		return
	}

	extend := mods&tcell.ModShift != 0
	for _, e := range entries {
		c := e.Cursor
		var off int64
		switch {
		case !extend && c.HasSelection() && k == tcell.KeyLeft:
			off, _ = c.Selection()
		case !extend && c.HasSelection() && k == tcell.KeyRight:
			_, off = c.Selection()
		default:
			off, _ = app.target(vb, c.Offset, k)
		}
		if extend {
			vb.SetCursor(e.ID, c.ExtendTo(off))
		} else {
			vb.SetCursor(e.ID, c.MoveTo(off))
		}
	}
}

// target returns where a navigation key takes a cursor at off. ok is false
// when the key would leave the buffer.
func (app *Application) target(vb *engine.VirtualBuffer, off int64, k tcell.Key) (int64, bool) {
	pt := vb.OffsetToPoint(off)
	line, _ := vb.Line(pt.Line)
	tab := app.view.TabWidth()

	vertical := func(delta int) (int64, bool) {
		to := min(max(pt.Line+delta, 0), vb.LineCount()-1)
		if to == pt.Line {
			return off, false
		}
		col := view.Column(line, pt.Column, tab)
		next, _ := vb.Line(to)
		return vb.PointToOffset(engine.Point{Line: to, Column: view.ByteColumn(next, col, tab)}), true
	}

	switch k {
	case tcell.KeyLeft:
		if pt.Column > 0 {
			_, size := utf8.DecodeLastRune(line[:pt.Column])
			return off - int64(size), true
		}
		if pt.Line > 0 {
			return off - 1, true
		}
	case tcell.KeyRight:
		if pt.Column < len(line) {
			_, size := utf8.DecodeRune(line[pt.Column:])
			return off + int64(size), true
		}
		if off < vb.Len() {
			return off + 1, true
		}
	case tcell.KeyUp:
		return vertical(-1)
	case tcell.KeyDown:
		return vertical(1)
	case tcell.KeyPgUp:
		return vertical(-max(app.view.Rows(), 1))
	case tcell.KeyPgDn:
		return vertical(max(app.view.Rows(), 1))
	case tcell.KeyHome:
		return off - int64(pt.Column), true
	case tcell.KeyEnd:
		return off + int64(len(line)-pt.Column), true
	}
	return off, false
}
