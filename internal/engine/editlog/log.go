package editlog

import (
	"sort"
	"sync"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// Step is the outcome of an undo or redo: the version content returns to
// and the changes that take it there, in application order.
type Step struct {
	Version chunktree.Version
	Events  []Event
}

// Log is the event log for one buffer.
type Log struct {
	mu sync.Mutex

	events []Event
	pos    int // events[:pos] are applied
	base   chunktree.Version
	saved  chunktree.Version

	nextGroup uint64
	group     uint64
	depth     int
}

// New creates an empty log whose content starts at base. The base is also
// the initial save point.
func New(base chunktree.Version) *Log {
	return &Log{base: base, saved: base, nextGroup: 1}
}

// Append records ev, advances the pointer and clears the redo tail. It
// returns ev.After.
func (l *Log) Append(ev Event) chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 {
		ev.Group = l.group
	} else {
		ev.Group = l.nextGroup
		l.nextGroup++
	}
	l.events = append(l.events[:l.pos], ev)
	l.pos++
	return ev.After
}

// BeginGroup starts a group; events appended until the matching EndGroup
// undo and redo together. Groups nest; only the outermost one counts.
func (l *Log) BeginGroup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 {
		l.group = l.nextGroup
		l.nextGroup++
	}
	l.depth++
}

// EndGroup ends the current group.
func (l *Log) EndGroup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 {
		l.depth--
	}
}

// Undo moves the pointer back over the last group. It returns false at the
// start of history.
func (l *Log) Undo() (Step, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == 0 {
		return Step{}, false
	}
	g := l.events[l.pos-1].Group
	var step Step
	for l.pos > 0 && l.events[l.pos-1].Group == g {
		l.pos--
		step.Events = append(step.Events, l.events[l.pos].Invert())
	}
	step.Version = l.events[l.pos].Before
	return step, true
}

// Redo re-applies the next group of the redo tail. It returns false when
// there is nothing to redo.
func (l *Log) Redo() (Step, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == len(l.events) {
		return Step{}, false
	}
	g := l.events[l.pos].Group
	var step Step
	for l.pos < len(l.events) && l.events[l.pos].Group == g {
		step.Events = append(step.Events, l.events[l.pos])
		l.pos++
	}
	step.Version = l.events[l.pos-1].After
	return step, true
}

// CanUndo reports whether Undo would do anything.
func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos > 0
}

// CanRedo reports whether Redo would do anything.
func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos < len(l.events)
}

// Current returns the version at the pointer.
func (l *Log) Current() chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked()
}

func (l *Log) currentLocked() chunktree.Version {
	if l.pos == 0 {
		return l.base
	}
	return l.events[l.pos-1].After
}

// Base returns the version the retained log starts from.
func (l *Log) Base() chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base
}

// Len returns the number of retained events, redo tail included.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Applied returns a copy of the applied events in order.
func (l *Log) Applied() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, l.pos)
	copy(out, l.events[:l.pos])
	return out
}

// Versions returns every version on the retained history line, from the
// base through the end of the redo tail.
func (l *Log) Versions() []chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]chunktree.Version, 0, len(l.events)+1)
	out = append(out, l.base)
	for _, ev := range l.events {
		out = append(out, ev.After)
	}
	return out
}

// MarkSaved records v as the version that matches the file on disk.
func (l *Log) MarkSaved(v chunktree.Version) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved = v
}

// SavePoint returns the version last marked as saved.
func (l *Log) SavePoint() chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saved
}

// Modified reports whether the current version differs from the save
// point.
func (l *Log) Modified() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked() != l.saved
}

// Window returns the oldest version reachable by undoing at most maxUndo
// groups. A non-positive maxUndo means unlimited.
func (l *Log) Window(maxUndo int) chunktree.Version {
	l.mu.Lock()
	defer l.mu.Unlock()

	if maxUndo <= 0 {
		return l.base
	}
	i := l.pos
	for groups := 0; i > 0 && groups < maxUndo; groups++ {
		g := l.events[i-1].Group
		for i > 0 && l.events[i-1].Group == g {
			i--
		}
	}
	if i == 0 {
		return l.base
	}
	return l.events[i].Before
}

// GC drops applied events whose After version is at or below lowWater and
// rebases the log at the last dropped version. Groups are never split. It
// returns the number of events dropped.
func (l *Log) GC(lowWater chunktree.Version) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := 0
	for k < l.pos && l.events[k].After <= lowWater {
		k++
	}
	for k > 0 && k < len(l.events) && l.events[k].Group == l.events[k-1].Group {
		k--
	}
	if k == 0 {
		return 0
	}
	l.base = l.events[k-1].After
	l.events = append([]Event(nil), l.events[k:]...)
	l.pos -= k
	return k
}

// Rebase discards all history and starts again at v, which also becomes
// the save point.
func (l *Log) Rebase(v chunktree.Version) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.pos = 0
	l.base = v
	l.saved = v
	l.depth = 0
}

// Path returns the changes that transform content at version from into
// content at version to, provided both lie on the retained history line.
// Moving backwards yields inverted events.
func (l *Log) Path(from, to chunktree.Version) ([]Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from == to {
		return nil, true
	}
	a, ok := l.indexLocked(from)
	if !ok {
		return nil, false
	}
	b, ok := l.indexLocked(to)
	if !ok {
		return nil, false
	}
	if a < b {
		out := make([]Event, b-a)
		copy(out, l.events[a:b])
		return out, true
	}
	out := make([]Event, 0, a-b)
	for i := a - 1; i >= b; i-- {
		out = append(out, l.events[i].Invert())
	}
	return out, true
}

// indexLocked maps a version to its position on the history line: 0 for
// the base, i+1 for the After version of events[i]. Versions increase
// strictly along the line.
func (l *Log) indexLocked(v chunktree.Version) (int, bool) {
	if v == l.base {
		return 0, true
	}
	i := sort.Search(len(l.events), func(i int) bool { return l.events[i].After >= v })
	if i < len(l.events) && l.events[i].After == v {
		return i + 1, true
	}
	return 0, false
}

// Replay applies the applied events, in order, to t. When t holds the
// content of Base, the result is the current content.
func (l *Log) Replay(t Target) error {
	for _, ev := range l.Applied() {
		if _, err := ev.ApplyTo(t); err != nil {
			return err
		}
	}
	return nil
}
